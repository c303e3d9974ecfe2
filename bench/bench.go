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

// Package bench implements the comparison harness from SPEC_FULL.md §12.5:
// FEF against plain JSON and two compressed-JSON baselines, sized and timed.
package bench

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/launix-de/fef/fef"
)

// Report is the size/timing comparison for one input document.
type Report struct {
	SourcePath    string
	JSONBytes     uint64
	JSONElapsed   time.Duration
	FEFBytes      uint64
	FEFElapsed    time.Duration
	LZ4Bytes      uint64
	LZ4Elapsed    time.Duration
	XZBytes       uint64
	XZElapsed     time.Duration
	ArgumentCount uint64
}

// String renders a one-line human-readable summary, e.g. "fef 4.2KiB
// (json 12KiB, lz4 6.1KiB, xz 5.3KiB)".
func (r Report) String() string {
	return fmt.Sprintf("fef %s (json %s, lz4 %s, xz %s)",
		units.BytesSize(float64(r.FEFBytes)),
		units.BytesSize(float64(r.JSONBytes)),
		units.BytesSize(float64(r.LZ4Bytes)),
		units.BytesSize(float64(r.XZBytes)),
	)
}

// heapAllocator is a throwaway, non-shared-memory Allocator used only to
// size the FEF buffer for comparison purposes — the benchmark harness has
// no need for the result to be a named, reusable segment.
type heapAllocator struct{ buf []byte }

func (h *heapAllocator) Allocate(size uint64) ([]byte, error) {
	h.buf = make([]byte, size)
	return h.buf, nil
}

func (h *heapAllocator) Reallocate(ptr []byte, size uint64) ([]byte, error) {
	nb := make([]byte, size)
	copy(nb, h.buf)
	h.buf = nb
	return nb, nil
}

// Compare loads path three ways and reports sizes and timings. It never
// writes a named segment: per the Non-goal "compression beyond type-RLE",
// lz4/xz only ever run against the plain-JSON baseline, not the FEF image.
func Compare(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	r := Report{SourcePath: path, JSONBytes: uint64(len(data))}

	start := time.Now()
	alloc := &heapAllocator{}
	root, err := fef.Load(alloc, data, fef.Options{BaseDir: filepath.Dir(path)})
	r.FEFElapsed = time.Since(start)
	if err != nil {
		return Report{}, err
	}
	r.FEFBytes = uint64(len(alloc.buf))
	r.ArgumentCount = root.Header().ArgumentCount

	start = time.Now()
	var lz4buf bytes.Buffer
	lw := lz4.NewWriter(&lz4buf)
	if _, err := lw.Write(data); err != nil {
		return Report{}, err
	}
	if err := lw.Close(); err != nil {
		return Report{}, err
	}
	r.LZ4Elapsed = time.Since(start)
	r.LZ4Bytes = uint64(lz4buf.Len())

	start = time.Now()
	var xzbuf bytes.Buffer
	xw, err := xz.NewWriter(&xzbuf)
	if err != nil {
		return Report{}, err
	}
	if _, err := xw.Write(data); err != nil {
		return Report{}, err
	}
	if err := xw.Close(); err != nil {
		return Report{}, err
	}
	r.XZElapsed = time.Since(start)
	r.XZBytes = uint64(xzbuf.Len())

	r.JSONElapsed = 0 // the JSON baseline is the raw input: no transform cost
	return r, nil
}

// TimeCSV runs the same Long -> Double -> String column ladder the Table
// writer uses, without producing a segment — the timed-only CLI path for a
// bare .csv argument (SPEC_FULL.md §13).
func TimeCSV(path string) (time.Duration, error) {
	start := time.Now()
	if err := fef.TimeCSVLadder(path); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

