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

package control

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/launix-de/fef/fef"
	"github.com/launix-de/fef/segment"
	"github.com/launix-de/fef/source"
)

// Server is the HTTP control plane named in spec §6: /load, /unload, /erase,
// /stop, plus the /list and /watch additions from SPEC_FULL.md §12.4.
type Server struct {
	store    *segment.Store
	registry *Registry
	log      *zap.Logger
	mux      *http.ServeMux

	watchers *watchHub

	DisableRLE bool
	DisableCSV bool
}

func NewServer(store *segment.Store, log *zap.Logger) *Server {
	s := &Server{
		store:    store,
		registry: NewRegistry(),
		log:      log,
		mux:      http.NewServeMux(),
		watchers: newWatchHub(),
	}
	s.mux.HandleFunc("/load", s.handleLoad)
	s.mux.HandleFunc("/unload", s.handleUnload)
	s.mux.HandleFunc("/erase", s.handleErase)
	s.mux.HandleFunc("/stop", s.handleStop)
	s.mux.HandleFunc("/list", s.handleList)
	s.mux.HandleFunc("/watch", s.handleWatch)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// stopCh is closed by /stop; cmd/fefserver selects on it to begin graceful
// shutdown via dc0d/onexit.
var stopCh = make(chan struct{})

// Stopped returns the channel closed by a /stop request.
func (s *Server) Stopped() <-chan struct{} { return stopCh }

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// handleLoad implements spec §6 "load(path, name, disableRLE, disableCSV,
// toJson, toBson)". toJson/toBson are accepted but always fall back to the
// FEF path, as SPEC_FULL.md §12.4 documents.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	name := q.Get("name")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, errMissingParam("path"))
		return
	}
	if name == "" {
		name = path
	}
	if q.Get("toJson") != "" || q.Get("toBson") != "" {
		s.log.Warn("toJson/toBson requested but unsupported by this server; falling back to FEF", zap.String("name", name))
	}

	root, elapsed, err := s.loadPath(name, path, q.Get("disableRLE") == "1", q.Get("disableCSV") == "1")
	if err != nil {
		if os.IsNotExist(err) {
			writeJSONError(w, http.StatusNotFound, err)
		} else {
			writeJSONError(w, http.StatusUnprocessableEntity, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":            name,
		"argumentCount":   root.Header().ArgumentCount,
		"expressionCount": root.Header().ExpressionCount,
		"elapsedNanos":    elapsed.Nanoseconds(),
		"avgLoadNanos":    s.registry.AvgNanos(name),
	})
}

// loadPath reads path, transduces it into the named segment and records the
// result in the registry. Shared by the HTTP /load handler and fswatch's
// directory auto-loader so both go through one code path.
func (s *Server) loadPath(name, path string, disableRLE, disableCSV bool) (fef.Root, time.Duration, error) {
	data, err := source.Read(context.Background(), path)
	if err != nil {
		return fef.Root{}, 0, err
	}

	h := s.store.CreateOrGet(name)
	start := time.Now()
	s.watchers.publish(name, "pass1", 0)
	root, err := fef.Load(h, data, fef.Options{
		DisableRLE: s.DisableRLE || disableRLE,
		DisableCSV: s.DisableCSV || disableCSV,
		BaseDir:    dirOf(path),
		Progress: func(phase string, n uint64) {
			s.watchers.publish(name, phase, n)
		},
	})
	if err != nil {
		return fef.Root{}, 0, err
	}
	elapsed := time.Since(start)
	s.registry.MarkLoaded(name, path, elapsed.Nanoseconds())
	s.log.Info("loaded segment",
		zap.String("name", name),
		zap.String("path", path),
		zap.Uint64("argumentCount", root.Header().ArgumentCount),
		zap.String("size", units.BytesSize(float64(len(h.Base())))),
		zap.Duration("elapsed", elapsed),
	)
	return root, elapsed, nil
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, errMissingParam("name"))
		return
	}
	h := s.store.CreateOrGet(name)
	if err := h.Unload(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	s.registry.MarkUnloaded(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, errMissingParam("name"))
		return
	}
	h := s.store.CreateOrGet(name)
	if err := h.Free(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	s.registry.Erase(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.log.Info("stop requested")
	close(stopCh)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.List())
}

type paramError struct{ name string }

func (e paramError) Error() string { return "missing required query parameter: " + e.name }
func errMissingParam(name string) error { return paramError{name} }

// dirOf resolves the base directory used for relative ".csv" references
// inside the loaded document. S3 paths never have CSV siblings resolved
// relative to them in practice, so it is left as "." for those.
func dirOf(path string) string {
	if source.IsS3Path(path) {
		return "."
	}
	return filepath.Dir(path)
}
