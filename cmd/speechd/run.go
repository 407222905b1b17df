package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/calibrate"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/config"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/correct"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/daemon"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/history"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/inject"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/observe"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/session"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/transcribe"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/vad"
)

var runCmd = &cobra.Command{
	Use:   "run [timeout-seconds]",
	Short: "Run the session daemon in the foreground",
	Long: `Runs the session daemon until it has been idle for the session timeout,
until it is interrupted, or until one request keeps failing.

The optional argument overrides session.timeout_seconds.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid timeout %q: want a positive number of seconds", args[0])
		}
		cfg.Session.TimeoutSeconds = n
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observe.Noop()
	if cfg.Metrics.Listen != "" {
		shutdown, err := observe.InitProvider(ctx, version)
		if err != nil {
			slog.Warn("metrics disabled", "error", err)
			cfg.Metrics.Listen = ""
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()
			if m, err := observe.NewMetrics(otel.GetMeterProvider()); err != nil {
				slog.Warn("metrics instruments not created", "error", err)
			} else {
				metrics = m
			}
		}
	}

	engine := transcribe.NewEngine(transcribe.Config{
		ModelPath:         cfg.Transcribe.ModelPath,
		FallbackModelPath: cfg.Transcribe.FallbackModelPath,
		Device:            cfg.Transcribe.Device,
		Language:          cfg.Transcribe.Language,
		Threads:           cfg.Transcribe.Threads,
		BeamSize:          cfg.Transcribe.BeamSize,
		VAD: vad.Params{
			Threshold:  cfg.VAD.Threshold,
			MinSilence: time.Duration(cfg.VAD.MinSilenceMS) * time.Millisecond,
			MinSpeech:  time.Duration(cfg.VAD.MinSpeechMS) * time.Millisecond,
			SpeechPad:  time.Duration(cfg.VAD.SpeechPadMS) * time.Millisecond,
		},
	}, transcribe.WhisperLoader{}, newDetector(cfg.VAD.WebRTCMode))

	opts := audio.Options{
		MinDuration:     cfg.Audio.MinDuration,
		MinRMS:          cfg.Audio.MinRMS,
		Denoise:         cfg.Audio.Denoise,
		HighPassHz:      cfg.Audio.HighPassHz,
		ReductionFactor: cfg.Audio.ReductionFactor,
		FloorRatio:      cfg.Audio.FloorRatio,
		Headroom:        cfg.Audio.Headroom,
		NoiseWindow:     cfg.Audio.NoiseWindow,
	}
	if cfg.Audio.Debug {
		opts.DebugPath = cfg.Paths.DebugAudio
	}

	var store *history.Store
	if cfg.Paths.HistoryDB != "" {
		if store, err = history.Open(cfg.Paths.HistoryDB); err != nil {
			slog.Warn("transcript history disabled", "error", err)
		} else {
			defer store.Close()
		}
	}

	deps := daemon.Deps{
		Preprocessor: audio.NewPreprocessor(opts),
		Engine:       engine,
		Router:       newRouter(cfg, store),
		Output:       inject.NewInjector(cfg.Output.Method, time.Duration(cfg.Output.FocusDelayMS)*time.Millisecond),
		Metrics:      metrics,
	}
	if store != nil {
		deps.History = store
	}

	if cfg.Calibration.Enabled {
		cal := calibrate.New(calibrate.Config{
			SampleDuration: time.Duration(cfg.Calibration.SampleSeconds * float64(time.Second)),
			Margin:         cfg.Calibration.Margin,
			SafetyBuffer:   cfg.Calibration.SafetyBuffer,
			MinThreshold:   cfg.Calibration.MinThreshold,
			MaxThreshold:   cfg.Calibration.MaxThreshold,
			MinDelta:       cfg.Calibration.MinDelta,
			Window:         cfg.Calibration.Window,
		}, engine, cfg.VAD.Threshold)
		deps.Calibrator = cal
		deps.Baseline = func(ctx context.Context) error {
			rec, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels)
			if err != nil {
				return err
			}
			defer rec.Close()
			_, err = cal.CollectBaseline(ctx, rec)
			return err
		}
	}

	d := daemon.New(daemon.Config{
		RequestDir:      cfg.Paths.RequestDir,
		ResponseDir:     cfg.Paths.ResponseDir,
		StatusFile:      cfg.Paths.StatusFile,
		PIDFile:         cfg.Paths.PIDFile,
		SessionTimeout:  cfg.SessionTimeout(),
		PollInterval:    cfg.PollInterval(),
		MonitorInterval: cfg.MonitorInterval(),
		StatusInterval:  cfg.StatusInterval(),
		RecencyWindow:   cfg.RecencyWindow(),
		MaxFailures:     cfg.Session.MaxRequestFailures,
		MetricsAddr:     cfg.Metrics.Listen,
	}, deps)

	printBanner(cfg)

	err = d.Run(ctx)
	if errors.Is(err, session.ErrAlreadyRunning) {
		fmt.Fprintf(os.Stderr, "speechd: %v\n", err)
		return nil
	}
	return err
}

// newDetector returns the speech segmenter. A WebRTC mode of 0-3 adds the
// WebRTC classifier on top of the energy threshold.
func newDetector(mode int) *vad.Detector {
	if mode < 0 {
		return vad.NewDetector(nil)
	}
	w, err := vad.NewWebRTC(mode)
	if err != nil {
		slog.Warn("webrtc vad unavailable, using energy only", "error", err)
		return vad.NewDetector(nil)
	}
	return vad.NewDetector(w)
}

// newRouter wires the correction command with conversation and dictation
// history as context.
func newRouter(cfg *config.Config, store *history.Store) *correct.Router {
	c := cfg.Correction
	rc := correct.Config{Enabled: c.Enabled, Threshold: c.Threshold, Timeout: cfg.CorrectionTimeout()}
	if !c.Enabled || c.Command == "" {
		rc.Enabled = false
		return correct.NewRouter(rc, nil, nil)
	}

	dir := c.ConversationDir
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = correct.DefaultConversationDir(cwd)
		}
	}
	sources := correct.MultiSource{&correct.ConversationLog{Dir: dir, Exchanges: c.ContextExchanges}}
	if store != nil && c.HistoryEntries > 0 {
		sources = append(sources, &correct.HistorySource{Store: store, Entries: c.HistoryEntries})
	}

	return correct.NewRouter(rc, correct.NewCommandBackend(c.Command, c.Args), sources)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "=== speechd ===")
	fmt.Fprintf(os.Stderr, "  Model:      %s (fallback %s)\n", cfg.Transcribe.ModelPath, cfg.Transcribe.FallbackModelPath)
	fmt.Fprintf(os.Stderr, "  Device:     %s\n", cfg.Transcribe.Device)
	fmt.Fprintf(os.Stderr, "  Timeout:    %s\n", cfg.SessionTimeout())
	fmt.Fprintf(os.Stderr, "  Requests:   %s\n", cfg.Paths.RequestDir)
	fmt.Fprintf(os.Stderr, "  Output:     %s\n", cfg.Output.Method)
	if cfg.Correction.Enabled {
		fmt.Fprintf(os.Stderr, "  Correction: %s %s (below %.2f)\n", cfg.Correction.Command, strings.Join(cfg.Correction.Args, " "), cfg.Correction.Threshold)
	} else {
		fmt.Fprintln(os.Stderr, "  Correction: off")
	}
	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(os.Stderr, "  Metrics:    http://%s/metrics\n", cfg.Metrics.Listen)
	}
	fmt.Fprintln(os.Stderr, "===============")
}
