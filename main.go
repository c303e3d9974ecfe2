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
/*
	fef turns JSON (and CSV-annotated JSON) documents into the Flat
	Expression Format: a single-allocation, zero-parse binary tree that
	lives in shared memory and can be traversed without ever materializing
	a DOM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/launix-de/fef/bench"
	"github.com/launix-de/fef/control"
	"github.com/launix-de/fef/fef"
	"github.com/launix-de/fef/repl"
	"github.com/launix-de/fef/segment"
	"github.com/launix-de/fef/source"
)

const shutdownTimeout = 10 * time.Second

var cli struct {
	Paths []string `arg:"" optional:"" help:"JSON or CSV files to load."`

	ForceReload        bool   `help:"Re-transduce even if a segment with this name already exists."`
	DisableRLE         bool   `help:"Disable run-length encoding of the type-tag stream."`
	DisableCSVHandling bool   `name:"disable-csv-handling" help:"Treat .csv-suffixed strings as literal strings instead of inlining them."`
	HTTPPort           int    `help:"Start the HTTP control plane on this port instead of a one-shot CLI run." default:"0"`
	LoadAsJSON         bool   `name:"load-as-json" help:"Force .csv arguments to be parsed as a bare JSON document instead of timed-only."`
	LoadAsBSON         bool   `name:"load-as-bson" help:"Accepted for CLI compatibility; falls back to the FEF path (see SPEC_FULL.md 12.4)."`
	Repl               bool   `help:"Start an interactive shell instead of processing Paths."`
	Watch              string `help:"Watch a directory and auto-load any .json file dropped into it (requires -http-port)."`
	Bench              bool   `help:"Report FEF size/time against plain-JSON and compressed-JSON baselines instead of loading into a segment."`
	Verbose            bool   `short:"v" help:"Use a development (human-readable) logger instead of production JSON logging."`
}

func newLogger() *zap.Logger {
	var log *zap.Logger
	var err error
	if cli.Verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func main() {
	kong.Parse(&cli,
		kong.Name("fef"),
		kong.Description("Flat Expression Format transducer, control plane and REPL."),
	)

	store, err := segment.NewStore(segment.DefaultDir())
	if err != nil {
		fmt.Fprintln(os.Stderr, "fef: cannot initialize segment store:", err)
		os.Exit(1)
	}

	if cli.HTTPPort > 0 {
		runServer(store)
		return
	}
	if cli.Repl {
		repl.Run(store)
		return
	}

	for _, path := range cli.Paths {
		if err := processPath(store, path); err != nil {
			fmt.Fprintln(os.Stderr, "fef:", path, err)
			os.Exit(1)
		}
	}
}

func processPath(store *segment.Store, path string) error {
	if cli.Bench {
		r, err := bench.Compare(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (fef took %s)\n", path, r, r.FEFElapsed)
		return nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".csv" && !cli.LoadAsJSON && !source.IsS3Path(path) {
		elapsed, err := bench.TimeCSV(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: csv column-type ladder took %s\n", path, elapsed)
		return nil
	}

	name := uuid.NewString()
	h := store.CreateOrGet(name)
	if cli.ForceReload {
		_ = h.Free()
		h = store.CreateOrGet(name)
	}

	data, err := source.Read(context.Background(), path)
	if err != nil {
		return err
	}
	baseDir := "."
	if !source.IsS3Path(path) {
		baseDir = filepath.Dir(path)
	}
	root, err := fef.Load(h, data, fef.Options{
		DisableRLE: cli.DisableRLE,
		DisableCSV: cli.DisableCSVHandling,
		BaseDir:    baseDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: loaded as segment %s (%d arguments, %d expressions)\n",
		path, name, root.Header().ArgumentCount, root.Header().ExpressionCount)
	return nil
}

func runServer(store *segment.Store) {
	log := newLogger()
	defer log.Sync()

	srv := control.NewServer(store, log)
	srv.DisableRLE = cli.DisableRLE
	srv.DisableCSV = cli.DisableCSVHandling

	if cli.Watch != "" {
		go func() {
			if err := srv.WatchDirectory(cli.Watch); err != nil {
				log.Warn("directory watch stopped", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cli.HTTPPort)
	log.Info("fef control plane listening", zap.String("addr", addr))
	if err := serveAndWaitForStop(addr, srv); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// serveAndWaitForStop runs httpSrv until a /stop request closes its Stopped
// channel, then shuts down cleanly.
func serveAndWaitForStop(addr string, srv *control.Server) error {
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-srv.Stopped():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
}
