package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Profile is one way of loading the model.
type Profile struct {
	Name      string
	ModelPath string
	Device    string
	Language  string
	Threads   uint
	BeamSize  int
}

// probeCUDA checks for a usable NVIDIA GPU.
func probeCUDA() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi", "-L").Output()
	if err != nil {
		return fmt.Errorf("nvidia-smi: %w", err)
	}
	if !strings.Contains(string(out), "GPU") {
		return fmt.Errorf("nvidia-smi: no GPU listed")
	}
	return nil
}

// SelectDevice resolves the configured device. "auto" probes for an
// accelerator and quietly resolves to cpu when the probe fails.
func (e *Engine) SelectDevice() string {
	switch e.cfg.Device {
	case DeviceCUDA, DeviceCPU:
		return e.cfg.Device
	}
	if err := e.probe(); err != nil {
		slog.Info("[engine] no accelerator found, using cpu", "reason", err)
		return DeviceCPU
	}
	return DeviceCUDA
}

// profiles returns the primary profile and the degraded profile tried when
// the primary fails to load. The degraded profile always runs on the CPU
// and prefers the smaller fallback model.
func (e *Engine) profiles() (primary, degraded Profile) {
	base := Profile{Language: e.cfg.Language, Threads: e.cfg.Threads, BeamSize: e.cfg.BeamSize}

	primary = base
	primary.ModelPath = e.cfg.ModelPath
	primary.Name = modelName(e.cfg.ModelPath)
	primary.Device = e.selectedDevice()

	degraded = base
	degraded.ModelPath = e.cfg.FallbackModelPath
	if degraded.ModelPath == "" {
		degraded.ModelPath = e.cfg.ModelPath
	}
	degraded.Name = modelName(degraded.ModelPath)
	degraded.Device = DeviceCPU
	return primary, degraded
}

// selectedDevice caches the SelectDevice outcome so the probe runs once.
func (e *Engine) selectedDevice() string {
	e.deviceOnce.Do(func() { e.device = e.SelectDevice() })
	return e.device
}

// modelName derives a short name like "large-v3" from a ggml model path.
func modelName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(name, "ggml-")
}
