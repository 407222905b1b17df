// Package audio loads recorded clips, analyzes them for content and applies
// best-effort noise reduction before transcription. It also owns microphone
// capture via malgo.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// TargetRate is the sample rate the speech model and VAD operate on.
const TargetRate = 16000

// ErrInvalidAudio is returned when a file is not a decodable PCM WAV.
var ErrInvalidAudio = errors.New("audio: invalid or unsupported audio file")

// Clip is a mono float32 sample buffer. Samples are in [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the clip length in seconds.
func (c Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// RMS returns the root-mean-square level of the clip.
func (c Clip) RMS() float64 {
	return RMS(c.Samples)
}

// RMS returns the root-mean-square level of samples, 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// Load decodes a PCM WAV file into a mono Clip. Multi-channel audio is
// downmixed by averaging channels.
func Load(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: %s", ErrInvalidAudio, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: %s: missing format", ErrInvalidAudio, path)
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}

	return Clip{
		Samples:    downmix(buf.Data, buf.Format.NumChannels, bitDepth),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// downmix converts interleaved integer PCM to mono float32.
func downmix(data []int, channels, bitDepth int) []float32 {
	if channels < 1 {
		channels = 1
	}
	offset := 0.0
	scale := 32768.0
	switch {
	case bitDepth == 8:
		// 8-bit WAV is unsigned.
		offset, scale = 128, 128
	case bitDepth > 0:
		scale = math.Ldexp(1, bitDepth-1)
	}

	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += (float64(data[i*channels+ch]) - offset) / scale
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts the clip to rate using linear interpolation. A clip
// already at rate is returned as is.
func (c Clip) Resample(rate int) Clip {
	if rate <= 0 || c.SampleRate == rate || c.SampleRate <= 0 || len(c.Samples) == 0 {
		return c
	}

	ratio := float64(c.SampleRate) / float64(rate)
	n := int(float64(len(c.Samples)) / ratio)
	out := make([]float32, n)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = c.Samples[idx]*(1-frac) + c.Samples[idx+1]*frac
	}
	return Clip{Samples: out, SampleRate: rate}
}

// WriteWAV writes the clip as a 16-bit mono PCM WAV file.
func WriteWAV(path string, c Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}

	enc := wav.NewEncoder(f, c.SampleRate, 16, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * 32767))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: encode %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: finalize %q: %w", path, err)
	}
	return f.Close()
}
