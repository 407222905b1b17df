// Command speechd is a session daemon for GPU-accelerated speech-to-text
// and the client commands that talk to it.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/config"
)

var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "speechd",
	Short: "Session daemon for GPU-accelerated speech-to-text",
	Long: `speechd keeps a whisper model resident between dictations and serves
transcription requests dropped into a request directory. The daemon exits
after a period of inactivity and frees the GPU.

Low-confidence transcripts are passed through a correction command before
they are typed into the focused window.`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ~/.config/speechd/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		defaultPath := config.DefaultConfigPath()
		if _, err := os.Stat(defaultPath); err != nil {
			slog.Debug("no config file found, using defaults", "path", defaultPath)
			return config.Default(), nil
		}
		path = defaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}

// setupLogging installs the default slog handler. Output goes to stderr
// and, when configured, is appended to the log file as well. The returned
// func closes the file.
func setupLogging(cfg *config.Config) func() {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err == nil {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", cfg.LogFile, err)
			} else {
				w = io.MultiWriter(os.Stderr, f)
				closeFn = func() { f.Close() }
			}
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return closeFn
}
