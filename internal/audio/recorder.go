package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Recorder captures audio from the default microphone.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu        sync.Mutex
	buf       []float32
	recording bool
}

// NewRecorder creates a new audio recorder. Call Close() when done.
func NewRecorder(sampleRate, channels uint32) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &Recorder{ctx: ctx, sampleRate: sampleRate, channels: channels}, nil
}

// Start begins capturing from the default microphone.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("audio: already recording")
	}
	r.buf = r.buf[:0]
	r.recording = true
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: r.onData})
	if err != nil {
		r.setRecording(false)
		return fmt.Errorf("audio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		r.setRecording(false)
		return fmt.Errorf("audio: start capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()
	return nil
}

// Stop ends the capture and returns what was recorded as a mono clip.
// It returns an empty clip when not recording.
func (r *Recorder) Stop() Clip {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return Clip{SampleRate: int(r.sampleRate)}
	}
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false

	return Clip{Samples: toMono(r.buf, int(r.channels)), SampleRate: int(r.sampleRate)}
}

// Capture records for d, or until ctx is done, and returns the clip.
func (r *Recorder) Capture(ctx context.Context, d time.Duration) (Clip, error) {
	if err := r.Start(); err != nil {
		return Clip{}, err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		r.Stop()
		return Clip{}, ctx.Err()
	}
	return r.Stop(), nil
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninit context: %w", err)
		}
		r.ctx.Free()
	}
	return nil
}

func (r *Recorder) setRecording(v bool) {
	r.mu.Lock()
	r.recording = v
	r.mu.Unlock()
}

// onData is the malgo capture callback; pSample holds little-endian float32
// frames.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	samples := bytesToFloat32(pSample, frameCount*r.channels)

	r.mu.Lock()
	r.buf = append(r.buf, samples...)
	r.mu.Unlock()
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	n := min(int(sampleCount), len(data)/4)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// toMono averages interleaved frames into a new mono slice.
func toMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
