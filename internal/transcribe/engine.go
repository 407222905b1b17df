// Package transcribe owns the speech model: device selection, lazy loading,
// deterministic release and inference with runtime-tunable VAD parameters.
package transcribe

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/vad"
)

// ErrLoadFailed is returned when neither the primary nor the degraded
// profile could be loaded.
var ErrLoadFailed = errors.New("transcribe: model load failed")

// State is the model lifecycle state.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateReleasing
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// Segment is one piece of recognized text with the probabilities of its
// text tokens. Probabilities is empty when the backend does not report them.
type Segment struct {
	Text          string
	Probabilities []float32
}

// Model is a loaded speech model.
type Model interface {
	Transcribe(samples []float32) ([]Segment, error)
	Close() error
}

// Loader loads a Model for a profile.
type Loader interface {
	Load(p Profile) (Model, error)
}

// Result is the outcome of one Transcribe call.
type Result struct {
	Segments       []string
	Confidence     float64
	ProcessingTime time.Duration
	Device         string
	Model          string
	Success        bool
	Err            error
}

// Text joins the segments with single spaces.
func (r Result) Text() string {
	return strings.Join(r.Segments, " ")
}

// Config configures an Engine.
type Config struct {
	ModelPath         string
	FallbackModelPath string
	Device            string // "auto", "cuda" or "cpu"
	Language          string
	Threads           uint
	BeamSize          int
	VAD               vad.Params
}

// Engine is the single owner of the speech model. Transcribe, Load and
// Release serialize on one mutex; state and VAD reads never block on
// inference.
type Engine struct {
	cfg      Config
	loader   Loader
	detector *vad.Detector
	probe    func() error

	deviceOnce sync.Once
	device     string

	mu    sync.Mutex
	model Model

	state  atomic.Int32
	active atomic.Pointer[Profile]

	vadMu  sync.RWMutex
	params vad.Params
}

// NewEngine creates an Engine in the Unloaded state. detector may be nil for
// plain energy segmentation.
func NewEngine(cfg Config, loader Loader, detector *vad.Detector) *Engine {
	if detector == nil {
		detector = vad.NewDetector(nil)
	}
	return &Engine{
		cfg:      cfg,
		loader:   loader,
		detector: detector,
		probe:    probeCUDA,
		params:   cfg.VAD,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Loaded reports whether a model is resident.
func (e *Engine) Loaded() bool {
	return e.State() == StateLoaded
}

// Device returns the device of the loaded model, or the device that would be
// used next when nothing is loaded.
func (e *Engine) Device() string {
	if p := e.active.Load(); p != nil {
		return p.Device
	}
	primary, _ := e.profiles()
	return primary.Device
}

// ModelName returns the name of the loaded model, empty when unloaded.
func (e *Engine) ModelName() string {
	if p := e.active.Load(); p != nil {
		return p.Name
	}
	return ""
}

// VADParams returns the parameters the next transcription will use.
func (e *Engine) VADParams() vad.Params {
	e.vadMu.RLock()
	defer e.vadMu.RUnlock()
	return e.params
}

// UpdateVADThreshold replaces the VAD energy threshold. It applies from the
// next Transcribe call on.
func (e *Engine) UpdateVADThreshold(v float64) {
	e.vadMu.Lock()
	old := e.params.Threshold
	e.params.Threshold = v
	e.vadMu.Unlock()
	slog.Debug("[engine] vad threshold updated", "from", old, "to", v)
}

// Load makes the model resident. It is a no-op when already loaded.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked()
}

func (e *Engine) loadLocked() error {
	if e.model != nil {
		return nil
	}
	e.state.Store(int32(StateLoading))

	primary, degraded := e.profiles()
	start := time.Now()
	profile := primary
	m, err := e.loader.Load(primary)
	if err != nil {
		slog.Warn("[engine] primary model load failed, trying degraded profile",
			"model", primary.Name, "device", primary.Device, "error", err)
		profile = degraded
		var err2 error
		m, err2 = e.loader.Load(degraded)
		if err2 != nil {
			e.state.Store(int32(StateUnloaded))
			return fmt.Errorf("%w: %w", ErrLoadFailed, errors.Join(err, err2))
		}
	}

	e.model = m
	e.active.Store(&profile)
	e.state.Store(int32(StateLoaded))
	slog.Info("[engine] model loaded",
		"model", profile.Name, "device", profile.Device,
		"took", time.Since(start).Round(time.Millisecond))
	return nil
}

// Release closes the model and returns to Unloaded. Calling it when nothing
// is loaded is a no-op.
func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil {
		return nil
	}
	e.state.Store(int32(StateReleasing))
	err := e.model.Close()
	e.model = nil
	e.active.Store(nil)
	e.state.Store(int32(StateUnloaded))

	if err != nil {
		slog.Warn("[engine] model close reported an error", "error", err)
		return fmt.Errorf("transcribe: release: %w", err)
	}
	slog.Info("[engine] model released")
	return nil
}

// Transcribe runs speech detection and inference on clip, loading the model
// first if needed.
func (e *Engine) Transcribe(clip audio.Clip) Result {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.loadLocked(); err != nil {
		return Result{Err: err, ProcessingTime: time.Since(start), Device: e.Device()}
	}
	profile := e.active.Load()
	res := Result{Device: profile.Device, Model: profile.Name}

	clip = clip.Resample(audio.TargetRate)
	regions := e.detector.Detect(clip.Samples, clip.SampleRate, e.VADParams())
	if len(regions) == 0 {
		slog.Debug("[engine] no speech regions")
		res.Success = true
		res.ProcessingTime = time.Since(start)
		return res
	}

	segments, err := e.model.Transcribe(vad.Collect(clip.Samples, regions))
	if err != nil {
		res.Err = fmt.Errorf("transcribe: inference: %w", err)
		res.ProcessingTime = time.Since(start)
		return res
	}

	var scores []float64
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, text)
		if p, ok := meanProbability(seg.Probabilities); ok {
			scores = append(scores, p)
		} else {
			scores = append(scores, HeuristicConfidence(text))
		}
	}
	res.Confidence = mean(scores)
	res.Success = true
	res.ProcessingTime = time.Since(start)
	return res
}
