// Package models fetches whisper ggml models into the local models directory.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseURL hosts the ggml conversions of the whisper models.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Model is one downloadable whisper model.
type Model struct {
	Name   string // short name, e.g. "large-v3"
	SizeMB int
	Use    string
}

// File returns the ggml file name for the model.
func (m Model) File() string {
	return "ggml-" + m.Name + ".bin"
}

// Catalog lists the models the daemon is set up for: the primary model and
// the fallback loaded when the primary cannot be.
var Catalog = []Model{
	{Name: "large-v3", SizeMB: 3095, Use: "primary, GPU"},
	{Name: "base.en", SizeMB: 142, Use: "fallback, CPU"},
}

// Lookup finds a catalog entry by name. A "ggml-" prefix or ".bin" suffix
// is accepted.
func Lookup(name string) (Model, bool) {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "ggml-"), ".bin")
	for _, m := range Catalog {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Downloader fetches models into Dir.
type Downloader struct {
	BaseURL string
	Dir     string
	Client  *http.Client
	Out     io.Writer
}

// NewDownloader returns a Downloader writing to dir with progress on out.
func NewDownloader(dir string, out io.Writer) *Downloader {
	return &Downloader{BaseURL: DefaultBaseURL, Dir: dir, Client: http.DefaultClient, Out: out}
}

// Download fetches m unless a non-empty copy already exists and returns the
// model's local path. The file is written to a temp name and renamed into
// place so an interrupted download never looks complete.
func (d *Downloader) Download(ctx context.Context, m Model) (string, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating models dir: %w", err)
	}

	destPath := filepath.Join(d.Dir, m.File())
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(d.Out, "  %s already exists: %s (%.0f MB)\n", m.Name, destPath, float64(info.Size())/(1024*1024))
		return destPath, nil
	}

	url := strings.TrimSuffix(d.BaseURL, "/") + "/" + m.File()
	fmt.Fprintf(d.Out, "  Downloading %s (~%d MB)\n", m.Name, m.SizeMB)
	fmt.Fprintf(d.Out, "  URL: %s\n", url)
	fmt.Fprintf(d.Out, "  Destination: %s\n", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", m.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	pw := &progressWriter{
		writer: f,
		out:    d.Out,
		total:  resp.ContentLength,
		label:  m.File(),
	}
	written, err := io.Copy(pw, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing model file: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(tmpPath)
		return "", fmt.Errorf("short download: got %d of %d bytes", written, resp.ContentLength)
	}

	fmt.Fprintf(d.Out, "\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("moving model file: %w", err)
	}
	return destPath, nil
}

// DownloadAll fetches every named model, or the whole catalog when names is
// empty.
func (d *Downloader) DownloadAll(ctx context.Context, names []string) error {
	todo := Catalog
	if len(names) > 0 {
		todo = todo[:0:0]
		for _, n := range names {
			m, ok := Lookup(n)
			if !ok {
				return fmt.Errorf("unknown model %q (available: %s)", n, available())
			}
			todo = append(todo, m)
		}
	}

	for i, m := range todo {
		fmt.Fprintf(d.Out, "[%d/%d] %s (%s):\n", i+1, len(todo), m.Name, m.Use)
		if _, err := d.Download(ctx, m); err != nil {
			return fmt.Errorf("%s download failed: %w", m.Name, err)
		}
	}
	return nil
}

func available() string {
	names := make([]string, len(Catalog))
	for i, m := range Catalog {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
