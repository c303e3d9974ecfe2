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
package bench

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCompareReportsAllThreeSizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	doc := `{"items":[1,2,3,4,5,6,7,8,9,10],"name":"example"}`
	if err := os.WriteFile(path, []byte(doc), 0640); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	r, err := Compare(path)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if r.JSONBytes != uint64(len(doc)) {
		t.Fatalf("expected JSONBytes=%d, got %d", len(doc), r.JSONBytes)
	}
	if r.FEFBytes == 0 {
		t.Fatalf("expected nonzero FEFBytes")
	}
	if r.LZ4Bytes == 0 || r.XZBytes == 0 {
		t.Fatalf("expected nonzero compressed baseline sizes, got lz4=%d xz=%d", r.LZ4Bytes, r.XZBytes)
	}
}

func TestTimeCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n3,4\n"), 0640); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if _, err := TimeCSV(path); err != nil {
		t.Fatalf("TimeCSV: %v", err)
	}
}
