// Package correct decides whether a transcript goes straight to output or
// through an external correction backend first.
//
// High-confidence transcripts take the fast path and never touch the
// backend. Low-confidence ones are sent with a little recent context; any
// backend failure falls back to the raw transcript, so correction can only
// improve a result, never lose it.
package correct

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// ErrEmptyOutput is returned by backends that produced no text.
var ErrEmptyOutput = errors.New("correct: backend returned no text")

// Path is the routing outcome.
type Path string

const (
	PathFast      Path = "fast"
	PathCorrected Path = "corrected"
	PathFallback  Path = "fallback"
)

// Backend turns a correction prompt into corrected text.
type Backend interface {
	Correct(ctx context.Context, prompt string) (string, error)
}

// ContextSource supplies recent context to include in the prompt. An empty
// string means no context.
type ContextSource interface {
	Context(ctx context.Context) (string, error)
}

// Config tunes a Router.
type Config struct {
	Enabled   bool
	Threshold float64
	Timeout   time.Duration
}

// Decision is the routing result for one transcript.
type Decision struct {
	Text       string
	Raw        string
	Path       Path
	Confidence float64
	Duration   time.Duration
	Edits      EditStats
	Err        error // backend failure behind a fallback, for logging only
}

// Router routes transcripts by confidence.
type Router struct {
	cfg     Config
	backend Backend
	source  ContextSource
}

// NewRouter creates a Router. source may be nil.
func NewRouter(cfg Config, backend Backend, source ContextSource) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Router{cfg: cfg, backend: backend, source: source}
}

// Threshold returns the confidence at or above which the fast path is taken.
func (r *Router) Threshold() float64 { return r.cfg.Threshold }

// Route returns the final text for transcript. It never fails; backend
// errors are reported in Decision.Err with the raw text returned.
func (r *Router) Route(ctx context.Context, transcript string, confidence float64) Decision {
	start := time.Now()
	d := Decision{Text: transcript, Raw: transcript, Path: PathFast, Confidence: confidence}

	if !r.cfg.Enabled || r.backend == nil || confidence >= r.cfg.Threshold || strings.TrimSpace(transcript) == "" {
		d.Duration = time.Since(start)
		return d
	}

	slog.Info("[correct] low confidence, requesting correction",
		"confidence", confidence, "threshold", r.cfg.Threshold)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var background string
	if r.source != nil {
		c, err := r.source.Context(ctx)
		if err != nil {
			slog.Warn("[correct] context unavailable", "error", err)
		}
		background = c
	}

	out, err := r.backend.Correct(ctx, BuildPrompt(transcript, background))
	if err == nil {
		out = StripQuotes(strings.TrimSpace(out))
		if out == "" {
			err = ErrEmptyOutput
		}
	}
	d.Duration = time.Since(start)

	if err != nil {
		slog.Warn("[correct] correction failed, using raw transcript", "error", err, "elapsed", d.Duration)
		d.Path = PathFallback
		d.Err = err
		return d
	}

	d.Text = out
	d.Path = PathCorrected
	d.Edits = Compare(transcript, out)
	slog.Info("[correct] transcript corrected", "elapsed", d.Duration, "edits", d.Edits.Edits())
	return d
}

var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"},
	{"‘", "’"},
}

// StripQuotes removes one pair of matching quotes around s.
func StripQuotes(s string) string {
	for _, q := range quotePairs {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return s[len(q[0]) : len(s)-len(q[1])]
		}
	}
	return s
}
