package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Session.TimeoutSeconds != 600 {
		t.Errorf("Session.TimeoutSeconds = %d, want 600", cfg.Session.TimeoutSeconds)
	}
	if cfg.Session.MaxRequestFailures != 3 {
		t.Errorf("Session.MaxRequestFailures = %d, want 3", cfg.Session.MaxRequestFailures)
	}
	if cfg.Audio.MinDuration != 0.15 {
		t.Errorf("Audio.MinDuration = %v, want 0.15", cfg.Audio.MinDuration)
	}
	if cfg.Audio.MinRMS != 0.0005 {
		t.Errorf("Audio.MinRMS = %v, want 0.0005", cfg.Audio.MinRMS)
	}
	if cfg.VAD.Threshold != 0.16 {
		t.Errorf("VAD.Threshold = %v, want 0.16", cfg.VAD.Threshold)
	}
	if cfg.Correction.Threshold != 0.75 {
		t.Errorf("Correction.Threshold = %v, want 0.75", cfg.Correction.Threshold)
	}
	if cfg.Paths.RequestDir != "/tmp/speech_session_requests" {
		t.Errorf("Paths.RequestDir = %q", cfg.Paths.RequestDir)
	}
	if cfg.Output.Method != "type" {
		t.Errorf("Output.Method = %q, want %q", cfg.Output.Method, "type")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	if got := cfg.SessionTimeout(); got != 10*time.Minute {
		t.Errorf("SessionTimeout() = %v, want 10m", got)
	}
	if got := cfg.MonitorInterval(); got != 30*time.Second {
		t.Errorf("MonitorInterval() = %v, want 30s", got)
	}
	if got := cfg.PollInterval(); got != 100*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 100ms", got)
	}
	if got := cfg.RecencyWindow(); got != time.Minute {
		t.Errorf("RecencyWindow() = %v, want 1m", got)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
session:
  timeout_seconds: 120
  max_request_failures: 5
transcribe:
  model_path: /tmp/test-model.bin
  device: cpu
vad:
  threshold: 0.2
output:
  method: paste
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transcribe.ModelPath != "/tmp/test-model.bin" {
		t.Errorf("Transcribe.ModelPath = %q, want %q", cfg.Transcribe.ModelPath, "/tmp/test-model.bin")
	}
	if cfg.Transcribe.Device != "cpu" {
		t.Errorf("Transcribe.Device = %q, want cpu", cfg.Transcribe.Device)
	}
	if cfg.Session.TimeoutSeconds != 120 {
		t.Errorf("Session.TimeoutSeconds = %d, want 120", cfg.Session.TimeoutSeconds)
	}
	if cfg.Session.MaxRequestFailures != 5 {
		t.Errorf("Session.MaxRequestFailures = %d, want 5", cfg.Session.MaxRequestFailures)
	}
	// Unset fields keep their defaults.
	if cfg.Session.MonitorIntervalSeconds != 30 {
		t.Errorf("Session.MonitorIntervalSeconds = %d, want 30", cfg.Session.MonitorIntervalSeconds)
	}
	if cfg.VAD.Threshold != 0.2 {
		t.Errorf("VAD.Threshold = %v, want 0.2", cfg.VAD.Threshold)
	}
	if cfg.Output.Method != "paste" {
		t.Errorf("Output.Method = %q, want paste", cfg.Output.Method)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadTOML(t *testing.T) {
	tomlContent := `
log_level = "warn"

[session]
timeout_seconds = 300

[correction]
command = "llm"
args = ["--prompt", "{prompt}"]
threshold = 0.6
`
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Session.TimeoutSeconds != 300 {
		t.Errorf("Session.TimeoutSeconds = %d, want 300", cfg.Session.TimeoutSeconds)
	}
	if cfg.Correction.Command != "llm" || len(cfg.Correction.Args) != 2 {
		t.Errorf("Correction = %+v", cfg.Correction)
	}
	if cfg.Correction.Threshold != 0.6 {
		t.Errorf("Correction.Threshold = %v, want 0.6", cfg.Correction.Threshold)
	}
	if cfg.Session.PollIntervalMS != 100 {
		t.Errorf("Session.PollIntervalMS = %d, want default 100", cfg.Session.PollIntervalMS)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
transcribe:
  model_path: ~/models/test.bin
paths:
  history_db: ~/speechd/history.db
`
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "models/test.bin"); cfg.Transcribe.ModelPath != want {
		t.Errorf("Transcribe.ModelPath = %q, want %q", cfg.Transcribe.ModelPath, want)
	}
	if want := filepath.Join(home, "speechd/history.db"); cfg.Paths.HistoryDB != want {
		t.Errorf("Paths.HistoryDB = %q, want %q", cfg.Paths.HistoryDB, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("session: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}, wantErr: false},
		{name: "invalid log level", modify: func(c *Config) { c.LogLevel = "invalid" }, wantErr: true},
		{name: "zero timeout", modify: func(c *Config) { c.Session.TimeoutSeconds = 0 }, wantErr: true},
		{name: "zero poll interval", modify: func(c *Config) { c.Session.PollIntervalMS = 0 }, wantErr: true},
		{name: "zero failure bound", modify: func(c *Config) { c.Session.MaxRequestFailures = 0 }, wantErr: true},
		{name: "same request and response dir", modify: func(c *Config) { c.Paths.ResponseDir = c.Paths.RequestDir }, wantErr: true},
		{name: "zero sample rate", modify: func(c *Config) { c.Audio.SampleRate = 0 }, wantErr: true},
		{name: "headroom above one", modify: func(c *Config) { c.Audio.Headroom = 1.2 }, wantErr: true},
		{name: "empty model path", modify: func(c *Config) { c.Transcribe.ModelPath = "" }, wantErr: true},
		{name: "invalid device", modify: func(c *Config) { c.Transcribe.Device = "tpu" }, wantErr: true},
		{name: "vad threshold out of range", modify: func(c *Config) { c.VAD.Threshold = 1.5 }, wantErr: true},
		{name: "webrtc mode too high", modify: func(c *Config) { c.VAD.WebRTCMode = 4 }, wantErr: true},
		{name: "calibration range inverted", modify: func(c *Config) { c.Calibration.MinThreshold = 0.5 }, wantErr: true},
		{name: "correction without command", modify: func(c *Config) { c.Correction.Command = "" }, wantErr: true},
		{name: "correction disabled without command", modify: func(c *Config) {
			c.Correction.Enabled = false
			c.Correction.Command = ""
		}, wantErr: false},
		{name: "invalid output method", modify: func(c *Config) { c.Output.Method = "invalid" }, wantErr: true},
		{name: "output none", modify: func(c *Config) { c.Output.Method = "none" }, wantErr: false},
		{name: "empty hotkey keys", modify: func(c *Config) { c.Hotkey.Keys = nil }, wantErr: true},
		{name: "invalid hotkey mode", modify: func(c *Config) { c.Hotkey.Mode = "invalid" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "speechd", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# speechd") {
		t.Error("written config should start with the header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Session.TimeoutSeconds != 600 {
		t.Errorf("written Session.TimeoutSeconds = %d, want 600", cfg.Session.TimeoutSeconds)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of written default error = %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("written default does not validate: %v", err)
	}
}

func TestWriteDefault_KeepsExisting(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir := filepath.Join(tmpHome, ".config", "speechd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(existing, []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := WriteDefault(); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, _ := os.ReadFile(existing)
	if string(data) != "log_level: debug\n" {
		t.Errorf("WriteDefault() overwrote existing config: %q", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
