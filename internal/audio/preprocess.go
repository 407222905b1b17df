package audio

import (
	"fmt"
	"log/slog"
	"math"
)

// Analysis summarizes a clip before any expensive processing.
type Analysis struct {
	Duration   float64 `json:"duration"`
	RMS        float64 `json:"rms"`
	Peak       float64 `json:"peak"`
	HasContent bool    `json:"has_content"`
	SampleRate int     `json:"sample_rate"`
}

// Processed is a loaded, analyzed and possibly denoised clip.
type Processed struct {
	Clip      Clip
	Analysis  Analysis
	Denoised  bool
	DebugFile string
}

// Options configures a Preprocessor.
type Options struct {
	MinDuration     float64 // seconds
	MinRMS          float64
	Denoise         bool
	HighPassHz      float64
	ReductionFactor float64
	FloorRatio      float64
	Headroom        float64
	NoiseWindow     float64 // seconds of leading audio used as the noise profile
	DebugPath       string  // empty disables the debug rendering
}

// DefaultOptions returns the preprocessing defaults.
func DefaultOptions() Options {
	return Options{
		MinDuration:     0.15,
		MinRMS:          0.0005,
		Denoise:         true,
		HighPassHz:      80,
		ReductionFactor: 1.5,
		FloorRatio:      0.1,
		Headroom:        0.95,
		NoiseWindow:     0.2,
	}
}

// Preprocessor gates silent clips and cleans the rest.
type Preprocessor struct {
	opts Options

	// subtract is the spectral subtraction stage. Replaced in tests.
	subtract func(x []float64, noiseLen int, factor, floor float64) []float64
}

// NewPreprocessor creates a Preprocessor with the given options.
func NewPreprocessor(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts, subtract: spectralSubtract}
}

// Analyze computes duration, RMS and peak and decides whether the clip has
// enough content to be worth transcribing.
func (p *Preprocessor) Analyze(c Clip) Analysis {
	a := Analysis{
		Duration:   c.Seconds(),
		RMS:        c.RMS(),
		Peak:       Peak(c.Samples),
		SampleRate: c.SampleRate,
	}
	a.HasContent = a.Duration >= p.opts.MinDuration && a.RMS >= p.opts.MinRMS
	return a
}

// Denoise applies high-pass filtering, spectral subtraction and peak
// normalization. If any stage fails the original clip is returned.
func (p *Preprocessor) Denoise(c Clip) Clip {
	out, _ := p.denoise(c)
	return out
}

func (p *Preprocessor) denoise(c Clip) (out Clip, applied bool) {
	if len(c.Samples) == 0 {
		return c, false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("[audio] denoise failed, using original audio", "panic", r)
			out, applied = c, false
		}
	}()

	x := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		x[i] = float64(s)
	}

	highPass(x, p.opts.HighPassHz, c.SampleRate)

	noiseLen := int(math.Min(p.opts.NoiseWindow*float64(c.SampleRate), float64(len(x))/4))
	x = p.subtract(x, noiseLen, p.opts.ReductionFactor, p.opts.FloorRatio)
	if len(x) != len(c.Samples) {
		slog.Warn("[audio] denoise changed clip length, using original audio",
			"want", len(c.Samples), "got", len(x))
		return c, false
	}

	var peak float64
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			slog.Warn("[audio] denoise produced non-finite samples, using original audio")
			return c, false
		}
		peak = math.Max(peak, math.Abs(v))
	}

	gain := 1.0
	if peak > 0 {
		gain = p.opts.Headroom / peak
	}

	samples := make([]float32, len(x))
	for i, v := range x {
		samples[i] = float32(v * gain)
	}
	return Clip{Samples: samples, SampleRate: c.SampleRate}, true
}

// Process loads path, analyzes it and denoises it when it has content. A
// debug rendering is written when configured; failing to write it is only
// logged.
func (p *Preprocessor) Process(path string) (Processed, error) {
	clip, err := Load(path)
	if err != nil {
		return Processed{}, fmt.Errorf("audio: process: %w", err)
	}

	result := Processed{Clip: clip, Analysis: p.Analyze(clip)}
	if !result.Analysis.HasContent {
		slog.Debug("[audio] clip has no content",
			"duration", result.Analysis.Duration, "rms", result.Analysis.RMS)
		return result, nil
	}

	if p.opts.Denoise {
		result.Clip, result.Denoised = p.denoise(clip)
	}

	if p.opts.DebugPath != "" {
		if err := WriteWAV(p.opts.DebugPath, result.Clip); err != nil {
			slog.Warn("[audio] debug audio not written", "path", p.opts.DebugPath, "error", err)
		} else {
			result.DebugFile = p.opts.DebugPath
		}
	}

	return result, nil
}
