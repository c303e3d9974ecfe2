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
package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/launix-de/fef/ferr"
)

func TestReadLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0640); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected contents: %s", data)
	}
}

func TestIsS3Path(t *testing.T) {
	if !IsS3Path("s3://bucket/key.json") {
		t.Fatal("expected s3:// path to be recognized")
	}
	if IsS3Path("/tmp/doc.json") {
		t.Fatal("did not expect a local path to be recognized as s3")
	}
}

func TestSplitS3PathRejectsMalformed(t *testing.T) {
	if _, _, err := splitS3Path("s3://bucket-with-no-key"); !ferr.Is(err, ferr.ParseError) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
