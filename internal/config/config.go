package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all daemon and client configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level" toml:"log_level"`
	LogFile     string            `yaml:"log_file" toml:"log_file"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Paths       PathsConfig       `yaml:"paths" toml:"paths"`
	Audio       AudioConfig       `yaml:"audio" toml:"audio"`
	Transcribe  TranscribeConfig  `yaml:"transcribe" toml:"transcribe"`
	VAD         VADConfig         `yaml:"vad" toml:"vad"`
	Calibration CalibrationConfig `yaml:"calibration" toml:"calibration"`
	Correction  CorrectionConfig  `yaml:"correction" toml:"correction"`
	Output      OutputConfig      `yaml:"output" toml:"output"`
	Hotkey      HotkeyConfig      `yaml:"hotkey" toml:"hotkey"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
}

// SessionConfig controls the daemon lifetime.
type SessionConfig struct {
	TimeoutSeconds         int `yaml:"timeout_seconds" toml:"timeout_seconds"`
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds" toml:"monitor_interval_seconds"`
	StatusIntervalSeconds  int `yaml:"status_interval_seconds" toml:"status_interval_seconds"`
	RecencyWindowSeconds   int `yaml:"recency_window_seconds" toml:"recency_window_seconds"`
	MaxRequestFailures     int `yaml:"max_request_failures" toml:"max_request_failures"`
	PollIntervalMS         int `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
}

// PathsConfig holds the well-known file locations shared with clients.
type PathsConfig struct {
	RequestDir  string `yaml:"request_dir" toml:"request_dir"`
	ResponseDir string `yaml:"response_dir" toml:"response_dir"`
	StatusFile  string `yaml:"status_file" toml:"status_file"`
	PIDFile     string `yaml:"pid_file" toml:"pid_file"`
	DebugAudio  string `yaml:"debug_audio" toml:"debug_audio"`
	HistoryDB   string `yaml:"history_db" toml:"history_db"`
}

// AudioConfig holds capture and preprocessing settings.
type AudioConfig struct {
	SampleRate      uint32  `yaml:"sample_rate" toml:"sample_rate"`
	Channels        uint32  `yaml:"channels" toml:"channels"`
	MinDuration     float64 `yaml:"min_duration" toml:"min_duration"` // seconds
	MinRMS          float64 `yaml:"min_rms" toml:"min_rms"`
	Denoise         bool    `yaml:"denoise" toml:"denoise"`
	HighPassHz      float64 `yaml:"high_pass_hz" toml:"high_pass_hz"`
	ReductionFactor float64 `yaml:"reduction_factor" toml:"reduction_factor"`
	FloorRatio      float64 `yaml:"floor_ratio" toml:"floor_ratio"`
	Headroom        float64 `yaml:"headroom" toml:"headroom"`
	NoiseWindow     float64 `yaml:"noise_window" toml:"noise_window"` // seconds
	Debug           bool    `yaml:"debug" toml:"debug"`
}

// TranscribeConfig selects the speech model and device.
type TranscribeConfig struct {
	ModelPath         string `yaml:"model_path" toml:"model_path"`
	FallbackModelPath string `yaml:"fallback_model_path" toml:"fallback_model_path"`
	Device            string `yaml:"device" toml:"device"` // "auto", "cuda" or "cpu"
	Language          string `yaml:"language" toml:"language"`
	Threads           uint   `yaml:"threads" toml:"threads"`
	BeamSize          int    `yaml:"beam_size" toml:"beam_size"`
}

// VADConfig holds the starting voice activity detection parameters.
type VADConfig struct {
	Threshold    float64 `yaml:"threshold" toml:"threshold"`
	MinSilenceMS int     `yaml:"min_silence_ms" toml:"min_silence_ms"`
	MinSpeechMS  int     `yaml:"min_speech_ms" toml:"min_speech_ms"`
	SpeechPadMS  int     `yaml:"speech_pad_ms" toml:"speech_pad_ms"`
	WebRTCMode   int     `yaml:"webrtc_mode" toml:"webrtc_mode"` // -1 disables
}

// CalibrationConfig tunes the ambient noise calibrator.
type CalibrationConfig struct {
	Enabled       bool    `yaml:"enabled" toml:"enabled"`
	SampleSeconds float64 `yaml:"sample_seconds" toml:"sample_seconds"`
	Margin        float64 `yaml:"margin" toml:"margin"`
	SafetyBuffer  float64 `yaml:"safety_buffer" toml:"safety_buffer"`
	MinThreshold  float64 `yaml:"min_threshold" toml:"min_threshold"`
	MaxThreshold  float64 `yaml:"max_threshold" toml:"max_threshold"`
	MinDelta      float64 `yaml:"min_delta" toml:"min_delta"`
	Window        int     `yaml:"window" toml:"window"`
}

// CorrectionConfig configures the low-confidence correction backend.
type CorrectionConfig struct {
	Enabled          bool     `yaml:"enabled" toml:"enabled"`
	Threshold        float64  `yaml:"threshold" toml:"threshold"`
	Command          string   `yaml:"command" toml:"command"`
	Args             []string `yaml:"args" toml:"args"` // "{prompt}" is replaced by the prompt
	TimeoutSeconds   int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	ContextExchanges int      `yaml:"context_exchanges" toml:"context_exchanges"`
	ConversationDir  string   `yaml:"conversation_dir" toml:"conversation_dir"`
	HistoryEntries   int      `yaml:"history_entries" toml:"history_entries"`
}

// OutputConfig holds text output settings.
type OutputConfig struct {
	Method       string `yaml:"method" toml:"method"` // "type", "paste" or "none"
	FocusDelayMS int    `yaml:"focus_delay_ms" toml:"focus_delay_ms"`
}

// HotkeyConfig holds hotkey-related settings for the listen command.
type HotkeyConfig struct {
	Keys []string `yaml:"keys" toml:"keys"`
	Mode string   `yaml:"mode" toml:"mode"` // "hold" or "toggle"
}

// MetricsConfig enables the Prometheus scrape endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "speechd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory for models and the history database.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "speechd")
}

// DefaultModelsDir returns the directory whisper models are downloaded to.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	models := DefaultModelsDir()

	return &Config{
		LogLevel: "info",
		Session: SessionConfig{
			TimeoutSeconds:         600,
			MonitorIntervalSeconds: 30,
			StatusIntervalSeconds:  10,
			RecencyWindowSeconds:   60,
			MaxRequestFailures:     3,
			PollIntervalMS:         100,
		},
		Paths: PathsConfig{
			RequestDir:  "/tmp/speech_session_requests",
			ResponseDir: "/tmp/speech_session_responses",
			StatusFile:  "/tmp/session_daemon_status.json",
			PIDFile:     "/tmp/session_daemon.pid",
			DebugAudio:  "/tmp/processed_audio_debug.wav",
			HistoryDB:   filepath.Join(DefaultDataDir(), "history.db"),
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			MinDuration:     0.15,
			MinRMS:          0.0005,
			Denoise:         true,
			HighPassHz:      80,
			ReductionFactor: 1.5,
			FloorRatio:      0.1,
			Headroom:        0.95,
			NoiseWindow:     0.2,
			Debug:           true,
		},
		Transcribe: TranscribeConfig{
			ModelPath:         filepath.Join(models, "ggml-large-v3.bin"),
			FallbackModelPath: filepath.Join(models, "ggml-base.en.bin"),
			Device:            "auto",
			Language:          "en",
			BeamSize:          5,
		},
		VAD: VADConfig{
			Threshold:    0.16,
			MinSilenceMS: 500,
			MinSpeechMS:  100,
			SpeechPadMS:  200,
			WebRTCMode:   -1,
		},
		Calibration: CalibrationConfig{
			Enabled:       true,
			SampleSeconds: 1.0,
			Margin:        0.2,
			SafetyBuffer:  1.5,
			MinThreshold:  0.05,
			MaxThreshold:  0.4,
			MinDelta:      0.01,
			Window:        10,
		},
		Correction: CorrectionConfig{
			Enabled:          true,
			Threshold:        0.75,
			Command:          "claude",
			Args:             []string{"-c", "-p", "{prompt}"},
			TimeoutSeconds:   15,
			ContextExchanges: 3,
			HistoryEntries:   3,
		},
		Output: OutputConfig{
			Method:       "type",
			FocusDelayMS: 50,
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "r"},
			Mode: "hold",
		},
	}
}

// Load reads and parses a config file. Files ending in .toml are decoded as
// TOML, everything else as YAML. Missing fields are filled with defaults and
// a leading ~ in any path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.expandPaths()

	return cfg, nil
}

func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.LogFile,
		&c.Paths.RequestDir,
		&c.Paths.ResponseDir,
		&c.Paths.StatusFile,
		&c.Paths.PIDFile,
		&c.Paths.DebugAudio,
		&c.Paths.HistoryDB,
		&c.Transcribe.ModelPath,
		&c.Transcribe.FallbackModelPath,
		&c.Correction.ConversationDir,
	} {
		*p = expandTilde(*p)
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session.timeout_seconds must be > 0")
	}
	if c.Session.MonitorIntervalSeconds <= 0 {
		return fmt.Errorf("session.monitor_interval_seconds must be > 0")
	}
	if c.Session.PollIntervalMS <= 0 {
		return fmt.Errorf("session.poll_interval_ms must be > 0")
	}
	if c.Session.MaxRequestFailures < 1 {
		return fmt.Errorf("session.max_request_failures must be >= 1")
	}

	if c.Paths.RequestDir == "" || c.Paths.ResponseDir == "" {
		return fmt.Errorf("paths.request_dir and paths.response_dir must not be empty")
	}
	if c.Paths.RequestDir == c.Paths.ResponseDir {
		return fmt.Errorf("paths.request_dir and paths.response_dir must differ")
	}
	if c.Paths.PIDFile == "" || c.Paths.StatusFile == "" {
		return fmt.Errorf("paths.pid_file and paths.status_file must not be empty")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}
	if c.Audio.Headroom <= 0 || c.Audio.Headroom > 1 {
		return fmt.Errorf("audio.headroom must be in (0, 1], got %v", c.Audio.Headroom)
	}

	if c.Transcribe.ModelPath == "" {
		return fmt.Errorf("transcribe.model_path must not be empty")
	}
	switch c.Transcribe.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("transcribe.device must be auto, cuda, or cpu, got %q", c.Transcribe.Device)
	}

	if c.VAD.Threshold <= 0 || c.VAD.Threshold >= 1 {
		return fmt.Errorf("vad.threshold must be in (0, 1), got %v", c.VAD.Threshold)
	}
	if c.VAD.WebRTCMode > 3 {
		return fmt.Errorf("vad.webrtc_mode must be -1 (off) or 0-3, got %d", c.VAD.WebRTCMode)
	}

	if c.Calibration.MinThreshold > c.Calibration.MaxThreshold {
		return fmt.Errorf("calibration.min_threshold must be <= calibration.max_threshold")
	}
	if c.Calibration.Window < 1 {
		return fmt.Errorf("calibration.window must be >= 1")
	}

	if c.Correction.Threshold < 0 || c.Correction.Threshold > 1 {
		return fmt.Errorf("correction.threshold must be in [0, 1], got %v", c.Correction.Threshold)
	}
	if c.Correction.Enabled && c.Correction.Command == "" {
		return fmt.Errorf("correction.command must not be empty when correction is enabled")
	}

	switch c.Output.Method {
	case "type", "paste", "none":
	default:
		return fmt.Errorf("output.method must be \"type\", \"paste\" or \"none\", got %q", c.Output.Method)
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}
	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	return nil
}

// SessionTimeout returns the inactivity timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// MonitorInterval returns the inactivity check interval.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Session.MonitorIntervalSeconds) * time.Second
}

// StatusInterval returns how often the status file is refreshed.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Session.StatusIntervalSeconds) * time.Second
}

// RecencyWindow returns how fresh a status file must be for its daemon to
// count as responsive.
func (c *Config) RecencyWindow() time.Duration {
	return time.Duration(c.Session.RecencyWindowSeconds) * time.Second
}

// PollInterval returns the request directory polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Session.PollIntervalMS) * time.Millisecond
}

// CorrectionTimeout returns the bound on one correction backend call.
func (c *Config) CorrectionTimeout() time.Duration {
	return time.Duration(c.Correction.TimeoutSeconds) * time.Second
}

// ParseLogLevel converts a config log level to a slog.Level.
// Unknown values map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# speechd configuration
# Session daemon for GPU-accelerated speech-to-text.
# Durations are in seconds unless the key says otherwise.

`

// WriteDefault writes the default configuration to DefaultConfigPath if no
// file exists there yet. It returns the path either way.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
