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
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/launix-de/fef/segment"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := segment.NewStore(filepath.Join(dir, "segments"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewServer(store, zap.NewNop()), dir
}

func TestLoadUnloadEraseList(t *testing.T) {
	s, dir := newTestServer(t)
	jsonPath := filepath.Join(dir, "doc.json")
	if err := os.WriteFile(jsonPath, []byte(`{"a":1}`), 0640); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/load?path="+jsonPath+"&name=doc", nil)
	s.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/list", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	if want := `["doc"]`; rr.Body.String() != want+"\n" {
		t.Fatalf("list: expected %q, got %q", want, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/unload?name=doc", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unload: expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/erase?name=doc", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("erase: expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/list", nil))
	if rr.Body.String() != "[]\n" {
		t.Fatalf("list after erase: expected empty, got %q", rr.Body.String())
	}
}

func TestLoadMissingPathReturnsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/load", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
