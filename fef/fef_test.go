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
package fef

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/launix-de/fef/ferr"
)

// memAlloc is a plain-heap Allocator stand-in for segment.Handle, so fef's
// tests never need a real mmap-backed file.
type memAlloc struct{ buf []byte }

func (m *memAlloc) Allocate(size uint64) ([]byte, error) {
	m.buf = make([]byte, size)
	return m.buf, nil
}

func (m *memAlloc) Reallocate(ptr []byte, size uint64) ([]byte, error) {
	nb := make([]byte, size)
	copy(nb, m.buf)
	m.buf = nb
	return nb, nil
}

func mustLoad(t *testing.T, json string, opts Options) Root {
	t.Helper()
	root, err := Load(&memAlloc{}, []byte(json), opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return root
}

func TestObjectWithThreeKeys(t *testing.T) {
	root := mustLoad(t, `{"a":1,"b":2.5,"c":"hi"}`, Options{})
	doc := NewCursor(root)
	if !doc.IsExpression() || doc.Symbol() != "Object" {
		t.Fatalf("expected root Object expression, got symbol=%q isExpr=%v", safeSymbol(doc), doc.IsExpression())
	}
	if doc.ChildCount() != 3 {
		t.Fatalf("expected 3 keys, got %d", doc.ChildCount())
	}

	a, err := doc.ChildByKey("a")
	if err != nil {
		t.Fatalf("ChildByKey(a): %v", err)
	}
	if a.Long() != 1 {
		t.Fatalf("expected a=1, got %d", a.Long())
	}

	b, err := doc.ChildByKey("b")
	if err != nil {
		t.Fatalf("ChildByKey(b): %v", err)
	}
	if b.Double() != 2.5 {
		t.Fatalf("expected b=2.5, got %v", b.Double())
	}

	c, err := doc.ChildByKey("c")
	if err != nil {
		t.Fatalf("ChildByKey(c): %v", err)
	}
	if c.String() != "hi" {
		t.Fatalf("expected c=hi, got %q", c.String())
	}
}

func safeSymbol(c Cursor) string {
	if !c.IsExpression() {
		return ""
	}
	return c.Symbol()
}

func TestChildByKeyNotFound(t *testing.T) {
	root := mustLoad(t, `{"a":1}`, Options{})
	doc := NewCursor(root)
	if _, err := doc.ChildByKey("missing"); !ferr.Is(err, ferr.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

func TestArraySmallRunNoRLE(t *testing.T) {
	root := mustLoad(t, `[1,2,3]`, Options{})
	doc := NewCursor(root)
	if doc.ChildCount() != 3 {
		t.Fatalf("expected 3 elements, got %d", doc.ChildCount())
	}
	// below RLEMinRun: the tag stream must hold one plain word per element,
	// not a compacted run.
	if uint64(len(root.Tags())) < 3 {
		t.Fatalf("expected at least 3 physical tag words for a non-RLE run, got %d", len(root.Tags()))
	}
	for i, tag := range root.Tags()[:3] {
		if TagHasRLE(tag) || TagType(tag) != TypeLong {
			t.Fatalf("expected plain Long tag word at %d, got %#x", i, tag)
		}
	}
	for i := uint64(0); i < 3; i++ {
		if doc.ChildByIndex(i).Long() != int64(i)+1 {
			t.Fatalf("element %d mismatch", i)
		}
	}
}

func TestLargeListIsRLEExact(t *testing.T) {
	n := 1000
	var sb []byte
	sb = append(sb, '[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb = append(sb, ',')
		}
		sb = append(sb, []byte(fmt.Sprintf("%d", i))...)
	}
	sb = append(sb, ']')

	root := mustLoad(t, string(sb), Options{})
	doc := NewCursor(root)
	if doc.ChildCount() != uint64(n) {
		t.Fatalf("expected %d elements, got %d", n, doc.ChildCount())
	}
	// the tag sub-array is always argument-count sized, never compacted: a
	// homogeneous run collapses to a flagged word plus a run-length word,
	// but the array itself stays exactly n words long.
	tags := root.Tags()
	if got := uint64(len(tags)); got != uint64(n) {
		t.Fatalf("expected exactly %d physical tag words (argument count, not compacted), got %d", n, got)
	}
	if !TagHasRLE(tags[0]) || TagType(tags[0]) != TypeLong {
		t.Fatalf("expected tags[0] to start a Long RLE run, got %#x", tags[0])
	}
	if tags[1] != uint64(n) {
		t.Fatalf("expected run length %d at tags[1], got %d", n, tags[1])
	}
	for i := 0; i < n; i += 137 {
		if doc.ChildByIndex(uint64(i)).Long() != int64(i) {
			t.Fatalf("element %d mismatch", i)
		}
	}
}

func TestDisableRLEKeepsOneWordPerArgument(t *testing.T) {
	n := 1000
	var sb []byte
	sb = append(sb, '[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb = append(sb, ',')
		}
		sb = append(sb, '1')
	}
	sb = append(sb, ']')

	root := mustLoad(t, string(sb), Options{DisableRLE: true})
	// the array is the document root and occupies no wrapper slot of its own;
	// with RLE disabled every element gets its own plain tag word.
	if got, want := uint64(len(root.Tags())), uint64(n); got != want {
		t.Fatalf("expected %d physical tag words with RLE disabled, got %d", want, got)
	}
	for i, tag := range root.Tags() {
		if TagHasRLE(tag) || TagType(tag) != TypeLong {
			t.Fatalf("expected plain Long tag word at %d with RLE disabled, got %#x", i, tag)
		}
	}
}

func TestCSVTableWithMissingCells(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	content := "id,name,score\n1,alice,9.5\n2,,7\n3,carol,\n"
	if err := os.WriteFile(csvPath, []byte(content), 0640); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	doc := fmt.Sprintf(`{"table":"%s"}`, "data.csv")
	root := mustLoad(t, doc, Options{BaseDir: dir})
	cur := NewCursor(root)
	table, err := cur.ChildByKey("table")
	if err != nil {
		t.Fatalf("ChildByKey(table): %v", err)
	}
	if !table.IsExpression() || table.Symbol() != "Table" {
		t.Fatalf("expected Table expression")
	}
	if table.ChildCount() != 3 {
		t.Fatalf("expected 3 columns, got %d", table.ChildCount())
	}

	nameCol := table.ChildByIndex(1)
	if nameCol.Symbol() != "name" {
		t.Fatalf("expected second column 'name', got %q", nameCol.Symbol())
	}
	missingCell := nameCol.ChildByIndex(1)
	if missingCell.Type() != TypeSymbol || missingCell.String() != "Missing" {
		t.Fatalf("expected Missing symbol for empty name cell, got type=%v", missingCell.Type())
	}

	idCol := table.ChildByIndex(0)
	it := idCol.LongIter()
	var got []int64
	for {
		v, ok, valid := it.Next()
		if !ok {
			break
		}
		if valid {
			got = append(got, v)
		}
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected id column values: %v", got)
	}
}

func TestNestedObjectsAndArrays(t *testing.T) {
	root := mustLoad(t, `{"items":[{"x":1},{"x":2},{"x":3}],"meta":{"ok":true}}`, Options{})
	doc := NewCursor(root)
	items, err := doc.ChildByKey("items")
	if err != nil {
		t.Fatalf("ChildByKey(items): %v", err)
	}
	if items.Symbol() != "List" || items.ChildCount() != 3 {
		t.Fatalf("expected List of 3, got symbol=%q count=%d", items.Symbol(), items.ChildCount())
	}
	second := items.ChildByIndex(1)
	x, err := second.ChildByKey("x")
	if err != nil {
		t.Fatalf("ChildByKey(x): %v", err)
	}
	if x.Long() != 2 {
		t.Fatalf("expected x=2, got %d", x.Long())
	}

	meta, err := doc.ChildByKey("meta")
	if err != nil {
		t.Fatalf("ChildByKey(meta): %v", err)
	}
	ok, err := meta.ChildByKey("ok")
	if err != nil {
		t.Fatalf("ChildByKey(ok): %v", err)
	}
	if !ok.Bool() {
		t.Fatalf("expected ok=true")
	}
}

func TestNullBecomesSymbol(t *testing.T) {
	root := mustLoad(t, `{"v":null}`, Options{})
	doc := NewCursor(root)
	v, err := doc.ChildByKey("v")
	if err != nil {
		t.Fatalf("ChildByKey(v): %v", err)
	}
	if v.Type() != TypeSymbol || v.String() != "Null" {
		t.Fatalf("expected Symbol(Null), got type=%v value=%q", v.Type(), v.String())
	}
}

func TestCSVDisabledLeavesStringLiteral(t *testing.T) {
	root := mustLoad(t, `{"path":"data.csv"}`, Options{DisableCSV: true})
	doc := NewCursor(root)
	v, err := doc.ChildByKey("path")
	if err != nil {
		t.Fatalf("ChildByKey(path): %v", err)
	}
	if v.Type() != TypeString || v.String() != "data.csv" {
		t.Fatalf("expected literal string data.csv, got type=%v value=%q", v.Type(), v.String())
	}
}
