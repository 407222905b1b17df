// Package calibrate adapts the VAD threshold to the room. A baseline ambient
// level is measured once; afterwards every request's loudness is compared
// against it and the threshold follows the observed speech-to-noise contrast.
package calibrate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
)

// Sampler captures a short stretch of ambient audio.
type Sampler interface {
	Capture(ctx context.Context, d time.Duration) (audio.Clip, error)
}

// Target receives threshold updates. *transcribe.Engine satisfies it.
type Target interface {
	UpdateVADThreshold(v float64)
}

// Config tunes a Calibrator.
type Config struct {
	SampleDuration time.Duration
	Margin         float64 // a clip counts as speech above baseline*(1+Margin)
	SafetyBuffer   float64
	MinThreshold   float64
	MaxThreshold   float64
	MinDelta       float64 // smaller changes are not pushed
	Window         int
}

// DefaultConfig returns the calibration defaults.
func DefaultConfig() Config {
	return Config{
		SampleDuration: time.Second,
		Margin:         0.2,
		SafetyBuffer:   1.5,
		MinThreshold:   0.05,
		MaxThreshold:   0.4,
		MinDelta:       0.01,
		Window:         10,
	}
}

// Calibrator tracks the ambient baseline and recent contrast ratios.
type Calibrator struct {
	cfg    Config
	target Target

	mu        sync.Mutex
	baseline  float64
	current   float64
	contrasts []float64
	next      int
}

// New creates a Calibrator that pushes into target. initial is the
// threshold target starts with.
func New(cfg Config, target Target, initial float64) *Calibrator {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	return &Calibrator{cfg: cfg, target: target, current: initial}
}

// CollectBaseline captures ambient audio and stores its RMS as the
// baseline. On error the calibrator stays inert.
func (c *Calibrator) CollectBaseline(ctx context.Context, s Sampler) (float64, error) {
	clip, err := s.Capture(ctx, c.cfg.SampleDuration)
	if err != nil {
		return 0, fmt.Errorf("calibrate: capture baseline: %w", err)
	}
	rms := clip.RMS()
	if rms <= 0 {
		return 0, fmt.Errorf("calibrate: baseline capture was digital silence")
	}
	c.SetBaseline(rms)
	slog.Info("[calibrate] ambient baseline measured", "rms", fmt.Sprintf("%.5f", rms),
		"seconds", clip.Seconds())
	return rms, nil
}

// SetBaseline sets the ambient level and recomputes the threshold.
func (c *Calibrator) SetBaseline(rms float64) {
	c.mu.Lock()
	c.baseline = rms
	c.mu.Unlock()
	c.Recompute()
}

// Baseline returns the ambient level, 0 when not measured.
func (c *Calibrator) Baseline() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseline
}

// Threshold returns the threshold last pushed to the target.
func (c *Calibrator) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Contrasts returns the contrast ratios in the window, oldest first.
func (c *Calibrator) Contrasts() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.contrasts) < c.cfg.Window {
		return append([]float64(nil), c.contrasts...)
	}
	out := make([]float64, 0, len(c.contrasts))
	out = append(out, c.contrasts[c.next:]...)
	return append(out, c.contrasts[:c.next]...)
}

// Observe records the loudness of a processed clip.
func (c *Calibrator) Observe(clip audio.Clip) float64 {
	return c.ObserveRMS(clip.RMS())
}

// ObserveRMS records a clip's RMS level and returns the threshold in force.
// Levels within the margin above baseline are ignored.
func (c *Calibrator) ObserveRMS(rms float64) float64 {
	c.mu.Lock()
	if c.baseline <= 0 || rms <= c.baseline*(1+c.cfg.Margin) {
		cur := c.current
		c.mu.Unlock()
		return cur
	}
	ratio := rms / c.baseline
	if len(c.contrasts) < c.cfg.Window {
		c.contrasts = append(c.contrasts, ratio)
	} else {
		c.contrasts[c.next] = ratio
		c.next = (c.next + 1) % c.cfg.Window
	}
	c.mu.Unlock()

	return c.Recompute()
}

// Recompute derives the threshold from the ambient level times the safety
// buffer and pushes it to the target when it moved by more than MinDelta.
// It returns the threshold in force.
//
// The detector compares each frame with the loudest frame of its clip, so
// once speech has been observed the ambient level is taken relative to it
// (the inverse of the mean contrast). Until then the absolute baseline is
// used.
func (c *Calibrator) Recompute() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseline <= 0 {
		return c.current
	}

	level := c.baseline
	if len(c.contrasts) > 0 {
		var sum float64
		for _, r := range c.contrasts {
			sum += r
		}
		level = float64(len(c.contrasts)) / sum
	}

	next := math.Max(c.cfg.MinThreshold, math.Min(c.cfg.MaxThreshold, level*c.cfg.SafetyBuffer))
	if math.Abs(next-c.current) <= c.cfg.MinDelta {
		return c.current
	}

	slog.Info("[calibrate] vad threshold adjusted",
		"from", fmt.Sprintf("%.3f", c.current), "to", fmt.Sprintf("%.3f", next),
		"samples", len(c.contrasts))
	c.current = next
	c.target.UpdateVADThreshold(next)
	return next
}
