package audio

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestAnalyze(t *testing.T) {
	p := NewPreprocessor(DefaultOptions())

	tests := []struct {
		name string
		clip Clip
		want bool
	}{
		{"speech-level tone", sine(300, 0.3, 16000, 1), true},
		{"too short", sine(300, 0.3, 16000, 0.1), false},
		{"too quiet", sine(300, 0.0001, 16000, 1), false},
		{"empty", Clip{SampleRate: 16000}, false},
		{"just over min duration", sine(300, 0.3, 16000, 0.16), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := p.Analyze(tt.clip)
			if a.HasContent != tt.want {
				t.Errorf("HasContent = %v, want %v (duration %v, rms %v)", a.HasContent, tt.want, a.Duration, a.RMS)
			}
			if a.SampleRate != tt.clip.SampleRate {
				t.Errorf("SampleRate = %d, want %d", a.SampleRate, tt.clip.SampleRate)
			}
		})
	}
}

func TestDenoisePreservesLengthAndHeadroom(t *testing.T) {
	p := NewPreprocessor(DefaultOptions())

	rng := rand.New(rand.NewSource(1))
	c := sine(400, 0.4, 16000, 1)
	for i := range c.Samples {
		c.Samples[i] += float32(rng.NormFloat64() * 0.01)
	}

	out, applied := p.denoise(c)
	if !applied {
		t.Fatal("denoise() reported not applied on valid input")
	}
	if len(out.Samples) != len(c.Samples) {
		t.Fatalf("len = %d, want %d", len(out.Samples), len(c.Samples))
	}
	if got := Peak(out.Samples); math.Abs(got-0.95) > 1e-3 {
		t.Errorf("peak = %v, want 0.95", got)
	}
	if out.SampleRate != c.SampleRate {
		t.Errorf("SampleRate = %d, want %d", out.SampleRate, c.SampleRate)
	}
}

func TestDenoiseFallsBackToOriginal(t *testing.T) {
	c := sine(400, 0.4, 16000, 0.5)

	tests := []struct {
		name     string
		subtract func([]float64, int, float64, float64) []float64
	}{
		{"panic", func([]float64, int, float64, float64) []float64 { panic("fft exploded") }},
		{"nan", func(x []float64, _ int, _, _ float64) []float64 {
			x[10] = math.NaN()
			return x
		}},
		{"wrong length", func(x []float64, _ int, _, _ float64) []float64 { return x[:len(x)/2] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreprocessor(DefaultOptions())
			p.subtract = tt.subtract

			out := p.Denoise(c)
			if len(out.Samples) != len(c.Samples) {
				t.Fatalf("len = %d, want %d", len(out.Samples), len(c.Samples))
			}
			for i := range c.Samples {
				if out.Samples[i] != c.Samples[i] {
					t.Fatalf("sample %d = %v, want original %v", i, out.Samples[i], c.Samples[i])
				}
			}
		})
	}
}

func TestHighPassRemovesRumble(t *testing.T) {
	rate := 16000
	middle := func(x []float64) float64 {
		var sum float64
		seg := x[rate/4 : 3*rate/4]
		for _, v := range seg {
			sum += v * v
		}
		return math.Sqrt(sum / float64(len(seg)))
	}
	tone := func(freq float64) []float64 {
		x := make([]float64, rate)
		for i := range x {
			x[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		}
		return x
	}

	low := tone(15)
	highPass(low, 80, rate)
	if got := middle(low); got > 0.01 {
		t.Errorf("15 Hz RMS after high-pass = %v, want < 0.01", got)
	}

	voice := tone(1000)
	highPass(voice, 80, rate)
	if got, want := middle(voice), 0.5/math.Sqrt2; math.Abs(got-want) > 0.02 {
		t.Errorf("1 kHz RMS after high-pass = %v, want about %v", got, want)
	}
}

func TestSpectralSubtractShortNoiseWindow(t *testing.T) {
	x := []float64{0.1, 0.2, 0.3}
	if got := spectralSubtract(x, 50, 1.5, 0.1); &got[0] != &x[0] {
		t.Error("spectralSubtract() should skip noise windows of 100 samples or fewer")
	}
}

func TestSpectralSubtractReducesNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rate := 16000
	x := make([]float64, rate)
	for i := range x {
		x[i] = rng.NormFloat64() * 0.05
	}
	before := 0.0
	for _, v := range x {
		before += v * v
	}

	out := spectralSubtract(append([]float64(nil), x...), rate/5, 1.5, 0.1)
	if len(out) != len(x) {
		t.Fatalf("len = %d, want %d", len(out), len(x))
	}
	after := 0.0
	for _, v := range out {
		after += v * v
	}
	if after >= before {
		t.Errorf("noise energy after = %v, before = %v; want a reduction", after, before)
	}
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	debug := filepath.Join(dir, "debug.wav")

	opts := DefaultOptions()
	opts.DebugPath = debug
	p := NewPreprocessor(opts)

	t.Run("content", func(t *testing.T) {
		path := filepath.Join(dir, "speech.wav")
		if err := WriteWAV(path, sine(300, 0.3, 16000, 1)); err != nil {
			t.Fatal(err)
		}

		res, err := p.Process(path)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if !res.Analysis.HasContent {
			t.Error("HasContent = false, want true")
		}
		if !res.Denoised {
			t.Error("Denoised = false, want true")
		}
		if res.DebugFile != debug {
			t.Errorf("DebugFile = %q, want %q", res.DebugFile, debug)
		}
		if _, err := os.Stat(debug); err != nil {
			t.Errorf("debug file not written: %v", err)
		}
	})

	t.Run("silence skips denoise", func(t *testing.T) {
		path := filepath.Join(dir, "silence.wav")
		if err := WriteWAV(path, Clip{Samples: make([]float32, 16000), SampleRate: 16000}); err != nil {
			t.Fatal(err)
		}

		res, err := p.Process(path)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if res.Analysis.HasContent || res.Denoised || res.DebugFile != "" {
			t.Errorf("silent clip result = %+v, want no content and no processing", res.Analysis)
		}
	})

	t.Run("debug write failure is not an error", func(t *testing.T) {
		opts := DefaultOptions()
		opts.DebugPath = filepath.Join(dir, "no", "such", "dir", "debug.wav")
		p := NewPreprocessor(opts)

		path := filepath.Join(dir, "speech2.wav")
		if err := WriteWAV(path, sine(300, 0.3, 16000, 1)); err != nil {
			t.Fatal(err)
		}
		res, err := p.Process(path)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if res.DebugFile != "" {
			t.Errorf("DebugFile = %q, want empty", res.DebugFile)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		if _, err := p.Process(filepath.Join(dir, "absent.wav")); err == nil {
			t.Error("Process() of missing file should fail")
		}
	})
}
