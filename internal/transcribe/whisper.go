package transcribe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperLoader loads ggml models through whisper.cpp.
type WhisperLoader struct{}

// Load loads the model for p. For the CPU profile CUDA devices are hidden
// from the library before the model is created.
func (WhisperLoader) Load(p Profile) (Model, error) {
	if _, err := os.Stat(p.ModelPath); err != nil {
		return nil, fmt.Errorf("transcribe: model %q: %w", p.ModelPath, err)
	}
	if p.Device == DeviceCPU {
		if err := os.Setenv("CUDA_VISIBLE_DEVICES", ""); err != nil {
			slog.Warn("[whisper] could not hide CUDA devices", "error", err)
		}
	}

	model, err := whisper.New(p.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", p.ModelPath, err)
	}
	return &whisperModel{model: model, profile: p}, nil
}

type whisperModel struct {
	model   whisper.Model
	profile Profile
}

// Close frees the model and its device buffers.
func (m *whisperModel) Close() error {
	if m.model == nil {
		return nil
	}
	err := m.model.Close()
	m.model = nil
	return err
}

// Transcribe runs inference on mono 16 kHz samples.
func (m *whisperModel) Transcribe(samples []float32) ([]Segment, error) {
	if m.model == nil {
		return nil, fmt.Errorf("transcribe: model closed")
	}
	ctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("transcribe: create context: %w", err)
	}

	if m.profile.Language != "" {
		if err := ctx.SetLanguage(m.profile.Language); err != nil {
			slog.Warn("[whisper] failed to set language, using default", "language", m.profile.Language, "error", err)
		}
	}
	if m.profile.Threads > 0 {
		ctx.SetThreads(m.profile.Threads)
	}
	if m.profile.BeamSize > 0 {
		ctx.SetBeamSize(m.profile.BeamSize)
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("transcribe: process: %w", err)
	}

	var segments []Segment
	for {
		seg, err := ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("transcribe: next segment: %w", err)
		}

		out := Segment{Text: seg.Text}
		for _, tok := range seg.Tokens {
			if isSpecialToken(tok.Text) {
				continue
			}
			out.Probabilities = append(out.Probabilities, tok.P)
		}
		segments = append(segments, out)
	}
	return segments, nil
}

// isSpecialToken reports control tokens such as "[_BEG_]" or "<|endoftext|>".
func isSpecialToken(text string) bool {
	return strings.HasPrefix(text, "[_") || strings.HasPrefix(text, "<|")
}
