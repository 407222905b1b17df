package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/hotkey"
)

// minRecording is the shortest capture worth sending.
const minRecording = 300 * time.Millisecond

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record on a global hotkey and transcribe through the daemon",
	Long: `Listens for the configured hotkey, records from the default microphone
while it is held (or between presses in toggle mode) and submits the
recording to the daemon, starting one when none is running. The daemon
types the result into the focused window.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	closeLog := setupLogging(cfg)
	defer closeLog()

	mode, err := hotkey.ParseMode(cfg.Hotkey.Mode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := ensureDaemon(ctx, cfg); err != nil {
		slog.Warn("daemon not ready yet, will retry on first recording", "error", err)
	}

	recorder, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return fmt.Errorf("failed to initialize audio recorder: %w", err)
	}

	listener := hotkey.NewListener(cfg.Hotkey.Keys, mode)
	go listener.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	client := newClient(cfg, 60*time.Second)
	chord := strings.Join(cfg.Hotkey.Keys, "+")
	slog.Info("ready", "hotkey", chord, "mode", mode)
	fmt.Fprintf(os.Stderr, "Press %s to dictate. Ctrl+C to quit.\n", chord)

	events := listener.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				slog.Info("hotkey listener stopped")
				recorder.Close()
				return nil
			}

			switch ev.Type {
			case hotkey.EventStart:
				if err := recorder.Start(); err != nil {
					slog.Error("failed to start recording", "error", err)
					continue
				}
				slog.Info("recording")

			case hotkey.EventStop:
				clip := recorder.Stop()
				if clip.Duration() < minRecording {
					slog.Info("recording too short, skipping", "duration", clip.Duration().Round(time.Millisecond))
					continue
				}

				path, err := saveRecording(clip)
				if err != nil {
					slog.Error("recording not saved", "error", err)
					continue
				}
				slog.Info("captured audio, transcribing", "duration", clip.Duration().Round(time.Millisecond))

				go func() {
					defer os.Remove(path)
					if err := ensureDaemon(ctx, cfg); err != nil {
						slog.Error("no daemon", "error", err)
						return
					}
					resp, err := client.Transcribe(ctx, path)
					if err != nil {
						slog.Error("transcription failed", "error", err)
						return
					}
					if resp.Text() == "" {
						slog.Info("no speech detected", "took", seconds(resp.ProcessingTime))
						return
					}
					fmt.Println(resp.Text())
				}()
			}

		case sig := <-sigCh:
			slog.Info("shutting down", "signal", sig)
			if recorder.IsRecording() {
				recorder.Stop()
			}
			recorder.Close()
			// Exit directly to avoid gohook's C cleanup crash.
			os.Exit(0)
		}
	}
}

func saveRecording(clip audio.Clip) (string, error) {
	f, err := os.CreateTemp("", "speechd-*.wav")
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()
	if err := audio.WriteWAV(path, clip); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// spawnDaemon starts "speechd run" detached from this process.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"run"}
	if cfgFile != "" {
		args = append([]string{"--config", cfgFile}, args...)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()

	c := exec.Command(exe, args...)
	c.Stdin, c.Stdout, c.Stderr = devnull, devnull, devnull
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := c.Start(); err != nil {
		return err
	}
	slog.Info("started daemon", "pid", c.Process.Pid)
	return c.Process.Release()
}
