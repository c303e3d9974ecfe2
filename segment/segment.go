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

// Package segment provides named, persistent, single-allocation byte regions
// with identity across processes, backed by the same place boost::interprocess
// resolves POSIX shared memory to on Linux: files under /dev/shm, mapped with
// mmap. A Store is the sole mutator of its Handles; readers in other processes
// open the same name with Handle.Load, which maps it read-write — this package
// has no read-only mapping mode.
package segment

import (
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"github.com/launix-de/fef/ferr"
)

// DefaultDir picks /dev/shm when it exists (the conventional POSIX shared
// memory mountpoint) and falls back to a directory under the OS temp dir
// otherwise, so the store still works on systems without tmpfs-backed /dev/shm.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return filepath.Join(os.TempDir(), "fef-segments")
}

// Store tracks every Handle created in this process. Only one Handle per name
// may exist per Store; CreateOrGet is idempotent.
type Store struct {
	mu      sync.Mutex
	dir     string
	handles map[string]*Handle
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, ferr.Wrap(ferr.IoError, "create segment directory "+dir, err)
	}
	return &Store{dir: dir, handles: make(map[string]*Handle)}, nil
}

// CreateOrGet returns the Handle for name, creating bookkeeping state (but not
// mapping anything) if this is the first reference in this process.
func (s *Store) CreateOrGet(name string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[name]; ok {
		return h
	}
	h := &Handle{store: s, name: name, path: filepath.Join(s.dir, name)}
	s.handles[name] = h
	return h
}

// Handle is a named shared-memory segment. At most one live allocation exists
// per Handle; the writer is the sole mutator, concurrent transducers on the
// same Handle from different goroutines are not supported (see spec §5).
type Handle struct {
	mu           sync.Mutex
	store        *Store
	name         string
	path         string
	file         *os.File
	region       mmap.MMap
	originalAddr uint64
}

func (h *Handle) Name() string { return h.name }

// Exists reports whether the backing object has been sized at least once.
func (h *Handle) Exists() bool {
	fi, err := os.Stat(h.path)
	return err == nil && fi.Size() > 0
}

func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.region != nil
}

// Allocate sizes and maps a segment that has never been sized. Fails if the
// segment is already mapped.
func (h *Handle) Allocate(size uint64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.region != nil {
		return nil, ferr.New(ferr.SegmentAllocError, "segment "+h.name+" is already allocated")
	}
	f, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, ferr.Wrap(ferr.SegmentAllocError, "open segment file "+h.path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, ferr.Wrap(ferr.SegmentAllocError, "truncate segment to size", err)
	}
	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, ferr.Wrap(ferr.SegmentAllocError, "mmap segment", err)
	}
	h.file = f
	h.region = region
	h.originalAddr = addressOf(region)
	return []byte(region), nil
}

// Load maps an existing, already-sized segment for reading or writing. It is
// a no-op if the segment is already mapped in this process.
func (h *Handle) Load() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.region != nil {
		return []byte(h.region), nil
	}
	f, err := os.OpenFile(h.path, os.O_RDWR, 0640)
	if err != nil {
		return nil, ferr.Wrap(ferr.SegmentNotLoaded, "open segment file "+h.path, err)
	}
	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, ferr.Wrap(ferr.SegmentNotLoaded, "mmap segment", err)
	}
	h.file = f
	h.region = region
	return []byte(region), nil
}

// Reallocate requires ptr to equal the current base; it unmaps, resizes the
// backing object and remaps. The returned base may differ from ptr — callers
// must discard any cached interior pointers derived from the old base.
func (h *Handle) Reallocate(ptr []byte, size uint64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.region == nil {
		return nil, ferr.New(ferr.SegmentNotLoaded, "segment "+h.name+" is not loaded")
	}
	if addressOf(h.region) != addressOfSlice(ptr) {
		return nil, ferr.New(ferr.InvariantViolated, "reallocate called with a stale base pointer for "+h.name)
	}
	if err := h.region.Unmap(); err != nil {
		return nil, ferr.Wrap(ferr.SegmentAllocError, "unmap before resize", err)
	}
	h.region = nil
	if err := h.file.Truncate(int64(size)); err != nil {
		return nil, ferr.Wrap(ferr.SegmentAllocError, "truncate to new size", err)
	}
	region, err := mmap.Map(h.file, mmap.RDWR, 0)
	if err != nil {
		return nil, ferr.Wrap(ferr.SegmentAllocError, "remap after resize", err)
	}
	h.region = region
	return []byte(region), nil
}

// Unload unmaps the segment without removing the backing object. Readers
// must call this before the segment may be erased.
func (h *Handle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.region == nil {
		return nil
	}
	err := h.region.Unmap()
	h.region = nil
	if h.file != nil {
		h.file.Close()
		h.file = nil
	}
	if err != nil {
		return ferr.Wrap(ferr.SegmentAllocError, "unmap segment "+h.name, err)
	}
	return nil
}

// Free unmaps (if mapped) and removes the named backing object entirely.
func (h *Handle) Free() error {
	if err := h.Unload(); err != nil {
		return err
	}
	h.store.mu.Lock()
	delete(h.store.handles, h.name)
	h.store.mu.Unlock()
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return ferr.Wrap(ferr.IoError, "remove segment file "+h.path, err)
	}
	return nil
}

func (h *Handle) Size() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint64(len(h.region))
}

// Base returns the current mapping, or nil if unmapped.
func (h *Handle) Base() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.region == nil {
		return nil
	}
	return []byte(h.region)
}

// OriginalAddress is the base address recorded at the most recent Allocate;
// per spec it is informational only — a remap-detection hint, never used to
// relocate pointers automatically.
func (h *Handle) OriginalAddress() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.originalAddr
}

func addressOf(b mmap.MMap) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func addressOfSlice(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
