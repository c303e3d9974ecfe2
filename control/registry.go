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

// Package control implements the HTTP control plane: load/unload/erase/stop
// plus the list and watch additions described in SPEC_FULL.md §12.4.
package control

import (
	"sync"

	"github.com/google/btree"
)

// segmentEntry is the btree item backing Registry: ordered by Name so
// /list returns a stable, sorted enumeration without a separate sort pass.
type segmentEntry struct {
	Name       string
	SourcePath string
	Loaded     bool
	totalNanos int64
	loadCount  int64
}

func (e *segmentEntry) Less(than btree.Item) bool {
	return e.Name < than.(*segmentEntry).Name
}

// Registry tracks every segment this server process knows about, along with
// a running average load time per segment name — the Go analogue of the
// original server's averageTimings map (SPEC_FULL.md §13).
type Registry struct {
	mu   sync.Mutex
	tree *btree.BTree
}

func NewRegistry() *Registry {
	return &Registry{tree: btree.New(32)}
}

func (r *Registry) entry(name string) *segmentEntry {
	item := r.tree.Get(&segmentEntry{Name: name})
	if item == nil {
		e := &segmentEntry{Name: name}
		r.tree.ReplaceOrInsert(e)
		return e
	}
	return item.(*segmentEntry)
}

// MarkLoaded records that name is mapped and backed by sourcePath (empty if
// loaded from an existing segment with no fresh transduction).
func (r *Registry) MarkLoaded(name, sourcePath string, elapsedNanos int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(name)
	e.Loaded = true
	e.SourcePath = sourcePath
	e.totalNanos += elapsedNanos
	e.loadCount++
}

// MarkUnloaded records that name was unmapped but the backing object still
// exists.
func (r *Registry) MarkUnloaded(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).Loaded = false
}

// Erase removes name from the registry entirely.
func (r *Registry) Erase(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Delete(&segmentEntry{Name: name})
}

// List returns every known segment name in sorted order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, r.tree.Len())
	r.tree.Ascend(func(item btree.Item) bool {
		names = append(names, item.(*segmentEntry).Name)
		return true
	})
	return names
}

// AvgNanos returns the running average load time for name, or 0 if it has
// never been loaded in this process.
func (r *Registry) AvgNanos(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := r.tree.Get(&segmentEntry{Name: name})
	if item == nil {
		return 0
	}
	e := item.(*segmentEntry)
	if e.loadCount == 0 {
		return 0
	}
	return e.totalNanos / e.loadCount
}
