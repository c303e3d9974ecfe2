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
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type progressEvent struct {
	Phase         string `json:"phase"`
	ArgumentCount uint64 `json:"argumentCount"`
}

// watchHub fans out transducer progress events to any /watch subscribers of
// a given segment name. A load that nobody is watching publishes into a
// void: subscribe channels are created lazily and dropped once drained.
type watchHub struct {
	mu   sync.Mutex
	subs map[string][]chan progressEvent
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string][]chan progressEvent)}
}

func (h *watchHub) subscribe(name string) chan progressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan progressEvent, 16)
	h.subs[name] = append(h.subs[name], ch)
	return ch
}

func (h *watchHub) unsubscribe(name string, ch chan progressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[name]
	for i, c := range list {
		if c == ch {
			h.subs[name] = append(list[:i], list[i+1:]...)
			break
		}
	}
	close(ch)
}

func (h *watchHub) publish(name, phase string, n uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[name] {
		select {
		case ch <- progressEvent{Phase: phase, ArgumentCount: n}:
		default:
			// a slow watcher misses an intermediate frame rather than
			// blocking the transducer
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWatch streams one JSON frame per transducer phase transition for the
// named in-flight (or future) load, per SPEC_FULL.md §12.4.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, errMissingParam("name"))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("watch upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := s.watchers.subscribe(name)
	defer s.watchers.unsubscribe(name, ch)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		if ev.Phase == "done" {
			return
		}
	}
}
