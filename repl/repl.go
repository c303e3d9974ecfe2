/*
Copyright (C) 2023  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package repl is an interactive shell for poking at loaded segments without
// going through the HTTP control plane, in the style of the teacher's own
// Scheme REPL (scm/prompt.go).
package repl

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/launix-de/fef/fef"
	"github.com/launix-de/fef/segment"
	"github.com/launix-de/fef/source"
)

const newPrompt = "\033[32mfef>\033[0m "
const resultPrompt = "\033[31m=\033[0m "

// Run starts the REPL against store. loaded remembers the Root of every
// segment loaded this session, keyed by name, so "get" and "stat" don't
// need to re-load from disk.
func Run(store *segment.Store) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            newPrompt,
		HistoryFile:       ".fef-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	loaded := map[string]fef.Root{}

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "load":
			if len(fields) != 3 {
				fmt.Println("usage: load <name> <path.json>")
				continue
			}
			name, path := fields[1], fields[2]
			data, err := source.Read(context.Background(), path)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			baseDir := "."
			if !source.IsS3Path(path) {
				baseDir = filepath.Dir(path)
			}
			h := store.CreateOrGet(name)
			root, err := fef.Load(h, data, fef.Options{BaseDir: baseDir})
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			loaded[name] = root
			fmt.Println(resultPrompt, "loaded", name, "arguments:", root.Header().ArgumentCount)
		case "stat":
			if len(fields) != 2 {
				fmt.Println("usage: stat <name>")
				continue
			}
			root, ok := loaded[fields[1]]
			if !ok {
				fmt.Println("not loaded:", fields[1])
				continue
			}
			h := root.Header()
			fmt.Printf("%s arguments=%d expressions=%d stringBytes=%d\n",
				resultPrompt, h.ArgumentCount, h.ExpressionCount, h.StringArgumentsFillIndex)
		case "get":
			if len(fields) != 3 {
				fmt.Println("usage: get <name> <dotted.key.path>")
				continue
			}
			root, ok := loaded[fields[1]]
			if !ok {
				fmt.Println("not loaded:", fields[1])
				continue
			}
			cur := fef.NewCursor(root)
			var err error
			for _, key := range strings.Split(fields[2], ".") {
				cur, err = cur.ChildByKey(key)
				if err != nil {
					break
				}
			}
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(resultPrompt, describe(cur))
		default:
			fmt.Println("commands: load <name> <path>, get <name> <path>, stat <name>, quit")
		}
	}
}

func describe(c fef.Cursor) string {
	switch c.Type() {
	case fef.TypeLong:
		return fmt.Sprintf("%d", c.Long())
	case fef.TypeDouble:
		return fmt.Sprintf("%g", c.Double())
	case fef.TypeBool:
		return fmt.Sprintf("%v", c.Bool())
	case fef.TypeString, fef.TypeSymbol:
		return c.String()
	case fef.TypeExpression:
		return fmt.Sprintf("%s(%d children)", c.Symbol(), c.ChildCount())
	default:
		return "<unknown>"
	}
}
