package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/ipc"
)

// Extras are the engine-side fields merged into every status snapshot.
type Extras struct {
	Device       string
	ModelLoaded  bool
	Model        string
	VADThreshold float64
	Requests     int
}

// Snapshot is the on-disk status document. Times are Unix seconds so that
// shell and Python tooling can read the file without a date parser.
type Snapshot struct {
	Active         bool    `json:"active"`
	Processing     bool    `json:"processing"`
	LastActivity   float64 `json:"last_activity"`
	SessionTimeout float64 `json:"session_timeout"`
	Device         string  `json:"device"`
	ModelLoaded    bool    `json:"model_loaded"`
	Model          string  `json:"model,omitempty"`
	VADThreshold   float64 `json:"vad_threshold,omitempty"`
	Requests       int     `json:"requests"`
	PID            int     `json:"pid"`
	Uptime         float64 `json:"uptime"`
	Timestamp      float64 `json:"timestamp"`
}

// Age returns how long ago the snapshot was written.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(FromUnix(s.Timestamp))
}

// Unix converts t to fractional Unix seconds.
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnix converts fractional Unix seconds back to a time.
func FromUnix(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}

// Snapshot combines the coordinator state with extra.
func (c *Coordinator) Snapshot(extra Extras) Snapshot {
	st := c.Status()
	return Snapshot{
		Active:         st.Active,
		Processing:     st.Processing,
		LastActivity:   Unix(st.LastActivity),
		SessionTimeout: st.SessionTimeout.Seconds(),
		Device:         extra.Device,
		ModelLoaded:    extra.ModelLoaded,
		Model:          extra.Model,
		VADThreshold:   extra.VADThreshold,
		Requests:       extra.Requests,
		PID:            st.PID,
		Uptime:         st.Uptime.Seconds(),
		Timestamp:      Unix(c.now()),
	}
}

// WriteStatus atomically replaces the status file at path. Failures are
// logged and otherwise ignored.
func (c *Coordinator) WriteStatus(path string, extra Extras) {
	if path == "" {
		return
	}
	if err := ipc.WriteJSON(path, c.Snapshot(extra)); err != nil {
		slog.Warn("[session] status write failed", "path", path, "error", err)
	}
}

// ReadStatus loads a status file written by WriteStatus.
func ReadStatus(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("session: parse status %s: %w", path, err)
	}
	return s, nil
}
