// Package ipc implements the file-based request/response queue between the
// daemon and its callers. Each request and response is one JSON document in
// a well-known directory, named after the request id.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidRequest marks request documents the daemon cannot act on.
var ErrInvalidRequest = errors.New("ipc: invalid request")

// Kind is the request type.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindPing       Kind = "ping"
)

// Request is a caller's ask.
type Request struct {
	ID        string  `json:"id"`
	Type      Kind    `json:"type"`
	AudioFile string  `json:"audio_file,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Validate checks the request is actionable. A missing type means
// transcribe.
func (r *Request) Validate() error {
	if err := validID(r.ID); err != nil {
		return err
	}
	if r.Type == "" {
		r.Type = KindTranscribe
	}
	switch r.Type {
	case KindPing:
	case KindTranscribe:
		if r.AudioFile == "" {
			return fmt.Errorf("%w: no audio_file specified", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, r.Type)
	}
	return nil
}

// ParseRequest decodes and validates a request document.
func ParseRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func validID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	case strings.ContainsAny(id, `/\`), id == ".", id == "..":
		return fmt.Errorf("%w: id %q is not a file name", ErrInvalidRequest, id)
	}
	return nil
}

// IDFromPath returns the request id implied by a request file name.
func IDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// Analysis mirrors the audio gate measurements in a response.
type Analysis struct {
	Duration   float64 `json:"duration"`
	RMS        float64 `json:"rms"`
	Peak       float64 `json:"peak"`
	HasContent bool    `json:"has_content"`
	SampleRate int     `json:"sample_rate"`
}

// Metadata carries per-request diagnostics.
type Metadata struct {
	Analysis     *Analysis `json:"audio_analysis,omitempty"`
	Denoised     bool      `json:"preprocessing_applied"`
	DebugFile    string    `json:"debug_file,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Raw          string    `json:"raw,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	Path         string    `json:"correction_path,omitempty"`
	Model        string    `json:"model,omitempty"`
	VADThreshold float64   `json:"vad_threshold,omitempty"`
}

// Response answers a transcribe request, or any request that failed.
// Results is always present so that silence reads as an empty list.
type Response struct {
	ID             string    `json:"id"`
	Success        bool      `json:"success"`
	Results        []string  `json:"results"`
	ProcessingTime float64   `json:"processing_time"`
	Device         string    `json:"device"`
	SessionActive  bool      `json:"session_active"`
	Timestamp      float64   `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

// Text joins the result segments the way they are typed.
func (r Response) Text() string {
	return strings.Join(r.Results, " ")
}

// Pong answers a ping.
type Pong struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Timestamp     float64 `json:"timestamp"`
	Device        string  `json:"device"`
	ModelLoaded   bool    `json:"model_loaded"`
	Uptime        float64 `json:"uptime"`
	SessionActive bool    `json:"session_active"`
	Error         string  `json:"error,omitempty"`
}

// PongType is the Type of every Pong.
const PongType = "pong"
