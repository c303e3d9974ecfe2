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
package segment

import (
	"testing"

	"github.com/launix-de/fef/ferr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAllocateThenLoaded(t *testing.T) {
	s := newTestStore(t)
	h := s.CreateOrGet("seg-a")
	if h.Exists() {
		t.Fatalf("fresh segment should not exist yet")
	}
	base, err := h.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(base) != 64 {
		t.Fatalf("expected 64 bytes, got %d", len(base))
	}
	if !h.Loaded() {
		t.Fatalf("expected Loaded() true after Allocate")
	}
	if !h.Exists() {
		t.Fatalf("expected Exists() true after Allocate")
	}
}

func TestAllocateTwiceFails(t *testing.T) {
	s := newTestStore(t)
	h := s.CreateOrGet("seg-b")
	if _, err := h.Allocate(16); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if _, err := h.Allocate(16); !ferr.Is(err, ferr.SegmentAllocError) {
		t.Fatalf("expected SegmentAllocError on double allocate, got %v", err)
	}
}

func TestReallocateGrows(t *testing.T) {
	s := newTestStore(t)
	h := s.CreateOrGet("seg-c")
	base, err := h.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	copy(base, []byte("0123456789abcdef"))
	newBase, err := h.Reallocate(base, 32)
	if err != nil {
		t.Fatalf("Reallocate: %v", err)
	}
	if len(newBase) != 32 {
		t.Fatalf("expected 32 bytes after grow, got %d", len(newBase))
	}
	if string(newBase[:16]) != "0123456789abcdef" {
		t.Fatalf("reallocate lost existing bytes: %q", newBase[:16])
	}
}

func TestReallocateWithStalePointerFails(t *testing.T) {
	s := newTestStore(t)
	h := s.CreateOrGet("seg-d")
	if _, err := h.Allocate(16); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	stale := make([]byte, 16)
	if _, err := h.Reallocate(stale, 32); !ferr.Is(err, ferr.InvariantViolated) {
		t.Fatalf("expected InvariantViolated for stale pointer, got %v", err)
	}
}

func TestFreeRemovesSegment(t *testing.T) {
	s := newTestStore(t)
	h := s.CreateOrGet("seg-e")
	if _, err := h.Allocate(8); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := h.Free(); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if h.Exists() {
		t.Fatalf("expected segment gone after Free")
	}
	if h.Loaded() {
		t.Fatalf("expected Loaded() false after Free")
	}
}

func TestLoadExistingSegmentFromAnotherHandle(t *testing.T) {
	s := newTestStore(t)
	h1 := s.CreateOrGet("seg-f")
	base, err := h1.Allocate(8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	copy(base, []byte("abcdefgh"))
	if err := h1.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	s2, err := NewStore(s.dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	h2 := s2.CreateOrGet("seg-f")
	if !h2.Exists() {
		t.Fatalf("expected segment to exist across stores")
	}
	reloaded, err := h2.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(reloaded) != "abcdefgh" {
		t.Fatalf("expected persisted bytes, got %q", reloaded)
	}
}
