// Package daemon runs the request loop: it answers pings, pushes transcribe
// requests through preprocessing, inference and correction one at a time,
// and shuts the session down on inactivity or a poisoned request.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/correct"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/history"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/ipc"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/observe"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/session"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/transcribe"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/vad"
)

// Preprocessor loads and cleans an audio file. *audio.Preprocessor
// satisfies it.
type Preprocessor interface {
	Process(path string) (audio.Processed, error)
}

// Engine is the speech model owner. *transcribe.Engine satisfies it.
type Engine interface {
	Transcribe(clip audio.Clip) transcribe.Result
	Loaded() bool
	Device() string
	ModelName() string
	VADParams() vad.Params
	Release() error
}

// Router picks the final text for a transcript. *correct.Router satisfies
// it.
type Router interface {
	Route(ctx context.Context, transcript string, confidence float64) correct.Decision
}

// Output delivers final text to the user. *inject.Injector satisfies it.
type Output interface {
	Inject(text string) error
}

// History records delivered transcripts. *history.Store satisfies it.
type History interface {
	Record(ctx context.Context, e history.Entry) error
}

// Calibrator follows request loudness. *calibrate.Calibrator satisfies it.
type Calibrator interface {
	ObserveRMS(rms float64) float64
}

// Config holds the loop's paths and timings.
type Config struct {
	RequestDir      string
	ResponseDir     string
	StatusFile      string
	PIDFile         string
	SessionTimeout  time.Duration
	PollInterval    time.Duration
	SettleTime      time.Duration // unparseable requests younger than this are retried
	MonitorInterval time.Duration
	StatusInterval  time.Duration
	RecencyWindow   time.Duration
	MaxFailures     int
	MetricsAddr     string // empty disables the metrics endpoint
}

// Deps are the collaborators. Preprocessor, Engine and Router are
// required; the rest may be nil.
type Deps struct {
	Preprocessor Preprocessor
	Engine       Engine
	Router       Router
	Output       Output
	History      History
	Calibrator   Calibrator
	Metrics      *observe.Metrics

	// Baseline, when set, is run once before the first request to measure
	// the ambient level.
	Baseline func(ctx context.Context) error
}

// Daemon is the request processor.
type Daemon struct {
	cfg      Config
	deps     Deps
	coord    *session.Coordinator
	queue    *ipc.Queue
	failures *failureCounter
	handled  atomic.Int64
	now      func() time.Time
}

// New wires a Daemon. The session clock starts now.
func New(cfg Config, deps Deps) *Daemon {
	if deps.Metrics == nil {
		deps.Metrics = observe.Noop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = 2 * cfg.PollInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 10 * time.Second
	}
	return &Daemon{
		cfg:      cfg,
		deps:     deps,
		coord:    session.NewCoordinator(cfg.SessionTimeout),
		queue:    ipc.NewQueue(cfg.RequestDir, cfg.ResponseDir),
		failures: newFailureCounter(cfg.MaxFailures),
		now:      time.Now,
	}
}

// Coordinator exposes the session state, mainly for signal handlers that
// want to request a clean shutdown.
func (d *Daemon) Coordinator() *session.Coordinator { return d.coord }

// Run serves requests until the session ends or ctx is cancelled. It fails
// with session.ErrAlreadyRunning, before touching the model, when another
// responsive daemon owns the instance marker.
func (d *Daemon) Run(ctx context.Context) error {
	inst, err := session.AcquireInstance(d.cfg.PIDFile, d.cfg.StatusFile, d.cfg.RecencyWindow)
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Release(); err != nil {
			slog.Warn("[daemon] instance marker not removed", "error", err)
		}
	}()

	if err := d.queue.Ensure(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	slog.Info("[daemon] started",
		"requests", d.cfg.RequestDir,
		"responses", d.cfg.ResponseDir,
		"timeout", d.cfg.SessionTimeout,
	)
	d.writeStatus()

	if d.deps.Baseline != nil {
		if err := d.deps.Baseline(ctx); err != nil {
			slog.Warn("[daemon] ambient calibration skipped", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := ipc.NewWatcher(d.cfg.RequestDir, d.cfg.PollInterval)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.coord.Monitor(gctx, d.cfg.MonitorInterval)
		return nil
	})
	g.Go(func() error { return watcher.Run(gctx) })
	if d.cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := observe.Serve(gctx, d.cfg.MetricsAddr); err != nil {
				slog.Warn("[daemon] metrics endpoint failed", "addr", d.cfg.MetricsAddr, "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		d.loop(gctx, watcher.C())
		return nil
	})

	err = g.Wait()
	d.shutdown()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (d *Daemon) loop(ctx context.Context, notify <-chan struct{}) {
	status := time.NewTicker(d.cfg.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[daemon] stopping", "reason", ctx.Err())
			return
		case <-d.coord.Done():
			return
		case <-notify:
			d.drain(ctx)
		case <-status.C:
			d.writeStatus()
		}
	}
}

type pending struct {
	path string
	req  ipc.Request
	err  error
}

// drain answers every waiting ping, then handles the oldest other request,
// and repeats until the directory is empty. Pings are re-checked between
// transcriptions so they never wait behind a queue of audio.
func (d *Daemon) drain(ctx context.Context) {
	for ctx.Err() == nil && !d.coord.ShutdownRequested() {
		items, err := d.scan()
		if err != nil {
			slog.Warn("[daemon] cannot list requests", "error", err)
			return
		}

		var next *pending
		for i := range items {
			it := &items[i]
			if it.err == nil && it.req.Type == ipc.KindPing {
				d.handlePing(ctx, it)
				continue
			}
			if next == nil {
				next = it
			}
		}
		if next == nil {
			return
		}
		d.handleTranscribe(ctx, next)
	}
}

func (d *Daemon) scan() ([]pending, error) {
	paths, err := d.queue.Pending()
	if err != nil {
		return nil, err
	}
	items := make([]pending, 0, len(paths))
	for _, p := range paths {
		req, err := d.queue.Read(p)
		if err != nil && d.settling(p) {
			continue
		}
		items = append(items, pending{path: p, req: req, err: err})
	}
	return items, nil
}

// settling reports whether an unreadable request may still be in the
// middle of being written, or has already been taken back by its caller.
// Such files are left for a later scan instead of being failed.
func (d *Daemon) settling(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if d.now().Sub(fi.ModTime()) < d.cfg.SettleTime {
		slog.Debug("[daemon] request still being written", "file", filepath.Base(path))
		return true
	}
	return false
}

// shutdown releases the model and writes the final status.
func (d *Daemon) shutdown() {
	d.coord.RequestShutdown("daemon stopping")
	wasLoaded := d.deps.Engine.Loaded()
	if err := d.deps.Engine.Release(); err != nil {
		slog.Warn("[daemon] model release failed", "error", err)
	} else if wasLoaded {
		d.deps.Metrics.ModelLoaded.Add(context.Background(), -1)
	}
	d.writeStatus()
	slog.Info("[daemon] stopped", "handled", d.handled.Load())
}

func (d *Daemon) writeStatus() {
	e := d.deps.Engine
	d.coord.WriteStatus(d.cfg.StatusFile, session.Extras{
		Device:       e.Device(),
		ModelLoaded:  e.Loaded(),
		Model:        e.ModelName(),
		VADThreshold: e.VADParams().Threshold,
		Requests:     int(d.handled.Load()),
	})
}
