package models

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"large-v3", "large-v3", true},
		{"ggml-base.en.bin", "base.en", true},
		{"base.en", "base.en", true},
		{"tiny", "", false},
	}
	for _, tt := range tests {
		m, ok := Lookup(tt.in)
		if ok != tt.wantOK || m.Name != tt.want {
			t.Errorf("Lookup(%q) = %q, %v", tt.in, m.Name, ok)
		}
	}
	if f := Catalog[0].File(); f != "ggml-large-v3.bin" {
		t.Errorf("File() = %q", f)
	}
}

func newServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/ggml-base.en.bin" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	var hits int32
	srv := newServer(t, "model-bytes", &hits)
	dir := filepath.Join(t.TempDir(), "models")

	var out bytes.Buffer
	d := NewDownloader(dir, &out)
	d.BaseURL = srv.URL

	m, _ := Lookup("base.en")
	path, err := d.Download(context.Background(), m)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "model-bytes" {
		t.Fatalf("model file = %q, %v", got, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	// A second call finds the file and does not hit the server.
	if _, err := d.Download(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDownloadHTTPError(t *testing.T) {
	var hits int32
	srv := newServer(t, "", &hits)
	dir := t.TempDir()

	d := NewDownloader(dir, io.Discard)
	d.BaseURL = srv.URL

	m, _ := Lookup("large-v3")
	if _, err := d.Download(context.Background(), m); err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Fatalf("Download() error = %v, want HTTP 404", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("models dir not empty after failure: %v", entries)
	}
}

func TestDownloadAllUnknown(t *testing.T) {
	d := NewDownloader(t.TempDir(), io.Discard)
	err := d.DownloadAll(context.Background(), []string{"tiny"})
	if err == nil || !strings.Contains(err.Error(), "large-v3, base.en") {
		t.Errorf("DownloadAll() error = %v", err)
	}
}

func TestProgressWriter(t *testing.T) {
	var dst, out bytes.Buffer
	pw := &progressWriter{writer: &dst, out: &out, total: 2 * 1024 * 1024, label: "m.bin"}

	n, err := pw.Write(make([]byte, 1024*1024))
	if err != nil || n != 1024*1024 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !strings.Contains(out.String(), "(50%)") {
		t.Errorf("progress = %q", out.String())
	}

	out.Reset()
	pw.total = 0
	pw.Write([]byte("x"))
	if !strings.Contains(out.String(), "downloaded") {
		t.Errorf("progress without total = %q", out.String())
	}
}
