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

// Command fefserver is the long-running control-plane binary: the HTTP
// /load, /unload, /erase, /stop, /list and /watch endpoints from
// SPEC_FULL.md §12.4, with graceful shutdown on SIGINT/SIGTERM and an
// optional directory watch for drop-in JSON files.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dc0d/onexit"
	"go.uber.org/zap"

	"github.com/launix-de/fef/control"
	"github.com/launix-de/fef/segment"
)

var cli struct {
	Port       int    `help:"HTTP port to listen on." default:"8089"`
	SegmentDir string `help:"Directory backing the segment store." default:""`
	Watch      string `help:"Directory to watch for dropped-in .json files."`
	DisableRLE bool   `help:"Disable run-length encoding of the type-tag stream."`
	DisableCSV bool   `help:"Treat .csv-suffixed strings as literal strings."`
	Verbose    bool   `short:"v" help:"Development logger instead of production JSON logging."`
}

func main() {
	kong.Parse(&cli, kong.Name("fefserver"))

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
	defer log.Sync()

	dir := cli.SegmentDir
	if dir == "" {
		dir = segment.DefaultDir()
	}
	store, err := segment.NewStore(dir)
	if err != nil {
		log.Fatal("cannot initialize segment store", zap.Error(err))
	}

	srv := control.NewServer(store, log)
	srv.DisableRLE = cli.DisableRLE
	srv.DisableCSV = cli.DisableCSV

	onexit.Register(func() { log.Info("fefserver shutting down") })

	if cli.Watch != "" {
		go func() {
			if err := srv.WatchDirectory(cli.Watch); err != nil {
				log.Warn("directory watch stopped", zap.Error(err))
			}
		}()
	}

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cli.Port), Handler: srv}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	log.Info("fefserver listening", zap.Int("port", cli.Port))

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-srv.Stopped():
		log.Info("stop requested via HTTP")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	onexit.Exit(0)
}
