package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/config"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/ipc"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/session"
)

var (
	pingTimeout       time.Duration
	transcribeTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a daemon is answering requests",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio.wav>",
	Short: "Send an audio file to the daemon and print the transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status file",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "how long to wait for the pong")
	transcribeCmd.Flags().DurationVar(&transcribeTimeout, "timeout", 60*time.Second, "how long to wait for the response")
	rootCmd.AddCommand(pingCmd, transcribeCmd, statusCmd)
}

func newClient(cfg *config.Config, maxWait time.Duration) *ipc.Client {
	q := ipc.NewQueue(cfg.Paths.RequestDir, cfg.Paths.ResponseDir)
	return ipc.NewClient(q, cfg.PollInterval(), maxWait)
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	start := time.Now()
	pong, err := newClient(cfg, pingTimeout).Ping(cmd.Context())
	if err != nil {
		if errors.Is(err, ipc.ErrTimeout) {
			return fmt.Errorf("no daemon answered within %s", pingTimeout)
		}
		return err
	}

	fmt.Printf("pong in %s: device=%s model_loaded=%v uptime=%s session_active=%v\n",
		time.Since(start).Round(time.Millisecond),
		pong.Device, pong.ModelLoaded,
		seconds(pong.Uptime),
		pong.SessionActive)
	return nil
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio file: %w", err)
	}

	resp, err := newClient(cfg, transcribeTimeout).Transcribe(cmd.Context(), path)
	if err != nil {
		return err
	}
	fmt.Println(resp.Text())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	snap, err := session.ReadStatus(cfg.Paths.StatusFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("speechd is not running (no status file)")
			return nil
		}
		return err
	}

	age := snap.Age(time.Now()).Round(time.Second)
	existing := session.CheckExisting(cfg.Paths.PIDFile, cfg.Paths.StatusFile, cfg.RecencyWindow())
	state := "stopped"
	switch {
	case existing != nil && existing.Responsive:
		state = "running"
	case existing != nil:
		state = "unresponsive"
	}

	fmt.Printf("State:          %s (pid %d, status written %s ago)\n", state, snap.PID, age)
	fmt.Printf("Session active: %v\n", snap.Active)
	fmt.Printf("Processing:     %v\n", snap.Processing)
	fmt.Printf("Device:         %s\n", snap.Device)
	if snap.ModelLoaded {
		fmt.Printf("Model:          %s (loaded)\n", snap.Model)
	} else {
		fmt.Println("Model:          not loaded")
	}
	if snap.VADThreshold > 0 {
		fmt.Printf("VAD threshold:  %.3f\n", snap.VADThreshold)
	}
	fmt.Printf("Requests:       %d\n", snap.Requests)
	fmt.Printf("Uptime:         %s\n", seconds(snap.Uptime))
	if snap.Active {
		idle := time.Since(session.FromUnix(snap.LastActivity))
		left := seconds(snap.SessionTimeout) - idle
		fmt.Printf("Expires in:     %s\n", max(left, 0).Round(time.Second))
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}

// ensureDaemon starts a background daemon unless a responsive one exists,
// then waits until it answers a ping.
func ensureDaemon(ctx context.Context, cfg *config.Config) error {
	if e := session.CheckExisting(cfg.Paths.PIDFile, cfg.Paths.StatusFile, cfg.RecencyWindow()); e != nil && e.Responsive {
		return nil
	}
	if err := spawnDaemon(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := newClient(cfg, 2*time.Second).Ping(ctx); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return errors.New("daemon did not answer within 30s")
}
