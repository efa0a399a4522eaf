package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/fml/internal/dependency"
	"github.com/frederic-klein/fml/internal/mod"
	"github.com/frederic-klein/fml/internal/retry"
)

var fastRetry = retry.Policy{Retries: 2, Wait: time.Millisecond}

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithRetry(fastRetry)}, opts...)
	return NewClient(url, log.New(io.Discard), opts...)
}

const fullModJSON = `{
	"name": "mod-a",
	"title": "Mod A",
	"summary": "Does things",
	"downloads_count": 1234,
	"releases": [
		{
			"download_url": "/download/mod-a/aaa",
			"file_name": "mod-a_1.0.0.zip",
			"info_json": {"factorio_version": "1.1", "dependencies": ["base >= 1.1.0", "? opt", "mod-b >=", "! bad"]},
			"version": "1.0.0",
			"sha1": "abc123"
		},
		{
			"download_url": "/download/mod-a/bbb",
			"file_name": "mod-a_2.0.0.zip",
			"info_json": {"factorio_version": "2.0"},
			"version": "2.0.0",
			"sha1": ""
		},
		{
			"download_url": "/download/mod-a/ccc",
			"file_name": "mod-a_bad.zip",
			"info_json": {"factorio_version": "2.0"},
			"version": "",
			"sha1": ""
		}
	]
}`

func TestClient_FetchMod(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/mods/mod-a/full" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(fullModJSON))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	// Act
	m, err := c.FetchMod(context.Background(), "mod-a")

	// Assert
	if err != nil {
		t.Fatalf("FetchMod() error = %v", err)
	}
	if m.Name != "mod-a" || m.Title != "Mod A" || m.DownloadCount != 1234 {
		t.Errorf("got %+v", m)
	}
	if len(m.Releases) != 2 {
		t.Fatalf("got %d releases, want 2 (unreadable version skipped)", len(m.Releases))
	}

	r := m.Releases[0]
	if r.GameVersion != "1.1" || r.SHA1 != "abc123" || r.DownloadURL != "/download/mod-a/aaa" || r.FileName != "mod-a_1.0.0.zip" {
		t.Errorf("release = %+v", r)
	}
	if len(r.Dependencies) != 3 {
		t.Fatalf("got %d dependencies, want 3 (malformed one skipped): %v", len(r.Dependencies), r.Dependencies)
	}
	if r.Dependencies[1].Kind != dependency.Optional || r.Dependencies[2].Kind != dependency.Incompatible {
		t.Errorf("dependencies = %v", r.Dependencies)
	}
}

func TestClient_FetchMod_NotFound(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMod(context.Background(), "missing")

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchMod() error = %v, want ErrNotFound", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("server called %d times, want 1 (404 is not retried)", n)
	}
}

func TestClient_FetchMod_RetriesServerErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(fullModJSON))
	}))
	defer server.Close()

	m, err := newTestClient(server.URL).FetchMod(context.Background(), "mod-a")

	if err != nil {
		t.Fatalf("FetchMod() error = %v", err)
	}
	if m.Name != "mod-a" {
		t.Errorf("Name = %q", m.Name)
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("server called %d times, want 3 (nothing cached)", n)
	}
}

func TestClient_FetchMod_GivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMod(context.Background(), "mod-a")

	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("FetchMod() error = %v, want a non-404 failure", err)
	}
}

func TestClient_FetchMod_Memoized(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(fullModJSON))
	}))
	defer server.Close()
	c := newTestClient(server.URL)

	for i := 0; i < 3; i++ {
		if _, err := c.GetMod(context.Background(), "mod-a"); err != nil {
			t.Fatal(err)
		}
	}

	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestClient_FetchModList(t *testing.T) {
	// Arrange
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mods" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(modListResponse{Results: []mod.Entry{
			{Name: "small", Title: "Small", DownloadCount: 10},
			{Name: "big", Title: "Big", DownloadCount: 1000},
		}})
	}))
	defer server.Close()

	// Act
	entries, err := newTestClient(server.URL).FetchModList(context.Background(), "1.1")

	// Assert
	if err != nil {
		t.Fatalf("FetchModList() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "big" {
		t.Errorf("entries = %v, want big first", entries)
	}
	if gotQuery != "hide_deprecated=true&page_size=max&version=1.1" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestClient_FetchModList_UsesCache(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		json.NewEncoder(w).Encode(modListResponse{Results: []mod.Entry{{Name: "a", DownloadCount: 1}}})
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	c := newTestClient(server.URL, WithCache(cacheDir, time.Hour))

	first, err := c.FetchModList(context.Background(), "1.1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := newTestClient(server.URL, WithCache(cacheDir, time.Hour)).FetchModList(context.Background(), "1.1")
	if err != nil {
		t.Fatal(err)
	}

	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
	if len(first) != 1 || len(second) != 1 || second[0].Name != "a" {
		t.Errorf("first = %v, second = %v", first, second)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "mods-1.1.json")); err != nil {
		t.Errorf("cache file missing: %v", err)
	}
}

func TestClient_FetchModList_ExpiredCache(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		json.NewEncoder(w).Encode(modListResponse{Results: []mod.Entry{{Name: "fresh"}}})
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	stale := filepath.Join(cacheDir, "mods-1.1.json")
	if err := os.WriteFile(stale, []byte(`[{"name":"stale"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	entries, err := newTestClient(server.URL, WithCache(cacheDir, time.Hour)).FetchModList(context.Background(), "1.1")

	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "fresh" {
		t.Errorf("entries = %v, want fresh", entries)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestClient_FetchModList_UnsafeGameVersionNotCached(t *testing.T) {
	// Arrange
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		json.NewEncoder(w).Encode(modListResponse{Results: []mod.Entry{{Name: "a"}}})
	}))
	defer server.Close()

	root := t.TempDir()
	cacheDir := filepath.Join(root, "cache", "fml")
	c := newTestClient(server.URL, WithCache(cacheDir, time.Hour))

	for _, gv := range []string{"../../../escape", `..\escape`, "1.1/../x"} {
		t.Run(gv, func(t *testing.T) {
			// Act
			entries, err := c.FetchModList(context.Background(), gv)

			// Assert
			if err != nil {
				t.Fatalf("FetchModList() error = %v", err)
			}
			if len(entries) != 1 {
				t.Errorf("entries = %v", entries)
			}
		})
	}

	var written []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			written = append(written, path)
		}
		return nil
	})
	if len(written) != 0 {
		t.Errorf("cache files written for unsafe game versions: %v", written)
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("server called %d times, want 3 (nothing cached)", n)
	}
}

func TestClient_BaseURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://mods.factorio.com", "https://mods.factorio.com"},
		{"https://mods.factorio.com/", "https://mods.factorio.com"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := newTestClient(tt.input).BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
