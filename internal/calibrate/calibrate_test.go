package calibrate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
)

type recordingTarget struct {
	updates []float64
}

func (r *recordingTarget) UpdateVADThreshold(v float64) {
	r.updates = append(r.updates, v)
}

type fakeSampler struct {
	level float32
	err   error
	asked time.Duration
}

func (f *fakeSampler) Capture(_ context.Context, d time.Duration) (audio.Clip, error) {
	f.asked = d
	if f.err != nil {
		return audio.Clip{}, f.err
	}
	s := make([]float32, 16000)
	for i := range s {
		if i%2 == 0 {
			s[i] = f.level
		} else {
			s[i] = -f.level
		}
	}
	return audio.Clip{Samples: s, SampleRate: 16000}, nil
}

func TestCollectBaseline(t *testing.T) {
	target := &recordingTarget{}
	c := New(DefaultConfig(), target, 0.16)

	s := &fakeSampler{level: 0.2}
	rms, err := c.CollectBaseline(context.Background(), s)
	if err != nil {
		t.Fatalf("CollectBaseline() error = %v", err)
	}
	if math.Abs(rms-0.2) > 1e-6 {
		t.Errorf("baseline = %v, want 0.2", rms)
	}
	if s.asked != time.Second {
		t.Errorf("capture duration = %v, want 1s", s.asked)
	}
	// 0.2 * 1.5 = 0.3 is well away from the starting 0.16.
	if len(target.updates) != 1 || math.Abs(target.updates[0]-0.3) > 1e-6 {
		t.Errorf("updates = %v, want [0.3]", target.updates)
	}
}

func TestCollectBaselineFailureLeavesCalibratorInert(t *testing.T) {
	target := &recordingTarget{}
	c := New(DefaultConfig(), target, 0.16)

	if _, err := c.CollectBaseline(context.Background(), &fakeSampler{err: errors.New("no mic")}); err == nil {
		t.Fatal("CollectBaseline() should fail when capture fails")
	}
	if _, err := c.CollectBaseline(context.Background(), &fakeSampler{level: 0}); err == nil {
		t.Fatal("CollectBaseline() should fail on digital silence")
	}

	if got := c.ObserveRMS(0.5); got != 0.16 {
		t.Errorf("ObserveRMS() = %v, want unchanged 0.16", got)
	}
	if len(target.updates) != 0 || len(c.Contrasts()) != 0 {
		t.Errorf("inert calibrator pushed %v, recorded %v", target.updates, c.Contrasts())
	}
}

func TestThresholdIsClamped(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		want     float64
	}{
		{"quiet room hits the floor", 0.001, 0.05},
		{"loud room hits the ceiling", 0.5, 0.4},
		{"in range", 0.2, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recordingTarget{}
			c := New(DefaultConfig(), target, 0.16)
			c.SetBaseline(tt.baseline)
			if got := c.Threshold(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Threshold() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSmallChangesAreNotPushed(t *testing.T) {
	target := &recordingTarget{}
	c := New(DefaultConfig(), target, 0.15)

	// 0.104 * 1.5 = 0.156, within MinDelta of 0.15.
	c.SetBaseline(0.104)
	if len(target.updates) != 0 {
		t.Errorf("updates = %v, want none", target.updates)
	}
	if got := c.Threshold(); got != 0.15 {
		t.Errorf("Threshold() = %v, want 0.15", got)
	}
}

func TestObserveRecordsContrastAboveMargin(t *testing.T) {
	c := New(DefaultConfig(), &recordingTarget{}, 0.16)
	c.SetBaseline(0.1)

	c.ObserveRMS(0.11) // within 20% margin
	c.ObserveRMS(0.3)
	c.Observe(audio.Clip{Samples: []float32{0.5, -0.5}, SampleRate: 16000})

	got := c.Contrasts()
	want := []float64{3, 5}
	if len(got) != len(want) {
		t.Fatalf("Contrasts() = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("Contrasts()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestThresholdFollowsSpeechContrast(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		speech   []float64
		want     float64
	}{
		// 0.02 * 1.5 = 0.03 clamps to the floor until speech is heard.
		{"quiet room before speech", 0.02, nil, 0.05},
		// Contrast 10: ambient is 0.1 of speech, 0.1 * 1.5 = 0.15.
		{"quiet room leaves the floor", 0.02, []float64{0.2}, 0.15},
		// Mean contrast (10+30)/2 = 20: 1/20 * 1.5 = 0.075.
		{"mean over the window", 0.01, []float64{0.1, 0.3}, 0.075},
		// Contrast 1.3: 1/1.3 * 1.5 exceeds the ceiling.
		{"low contrast hits the ceiling", 0.2, []float64{0.26}, 0.4},
		// Contrast 100: 0.015 clamps to the floor.
		{"very high contrast hits the floor", 0.005, []float64{0.5}, 0.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(DefaultConfig(), &recordingTarget{}, 0.16)
			c.SetBaseline(tt.baseline)
			got := c.Threshold()
			for _, rms := range tt.speech {
				got = c.ObserveRMS(rms)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("threshold = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 3
	c := New(cfg, &recordingTarget{}, 0.16)
	c.SetBaseline(0.01)

	for _, rms := range []float64{0.02, 0.03, 0.04, 0.05, 0.06} {
		c.ObserveRMS(rms)
	}

	got := c.Contrasts()
	want := []float64{4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("Contrasts() = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("Contrasts()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
