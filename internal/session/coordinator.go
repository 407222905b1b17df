// Package session tracks daemon activity, persists status for external
// monitors and enforces a single running daemon per machine.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Status is a point-in-time view of the coordinator.
type Status struct {
	Active         bool
	Processing     bool
	LastActivity   time.Time
	SessionTimeout time.Duration
	PID            int
	Uptime         time.Duration
}

// Coordinator owns the last-activity clock and the shutdown flag. All
// state is guarded by one mutex; no I/O happens while it is held.
type Coordinator struct {
	timeout time.Duration
	start   time.Time
	pid     int
	now     func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	processing   bool
	shutdown     bool
	done         chan struct{}
}

// NewCoordinator creates a coordinator whose session expires after timeout
// without activity. The clock starts now.
func NewCoordinator(timeout time.Duration) *Coordinator {
	return newCoordinator(timeout, time.Now)
}

func newCoordinator(timeout time.Duration, now func() time.Time) *Coordinator {
	t := now()
	slog.Info("[session] coordinator initialized", "timeout", timeout, "pid", os.Getpid())
	return &Coordinator{
		timeout:      timeout,
		start:        t,
		pid:          os.Getpid(),
		now:          now,
		lastActivity: t,
		done:         make(chan struct{}),
	}
}

// Timeout returns the configured inactivity window.
func (c *Coordinator) Timeout() time.Duration { return c.timeout }

// RecordActivity resets the inactivity clock.
func (c *Coordinator) RecordActivity() {
	t := c.now()
	c.mu.Lock()
	c.lastActivity = t
	c.mu.Unlock()
}

// SetProcessing flags an in-flight transcription. Starting one counts as
// activity.
func (c *Coordinator) SetProcessing(v bool) {
	t := c.now()
	c.mu.Lock()
	c.processing = v
	if v {
		c.lastActivity = t
	}
	c.mu.Unlock()
}

// Processing reports whether a transcription is in flight.
func (c *Coordinator) Processing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processing
}

// InactiveDuration returns the time since the last recorded activity.
func (c *Coordinator) InactiveDuration() time.Duration {
	t := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.Sub(c.lastActivity)
}

// IsActive is false once shutdown was requested or the session has been
// idle longer than the timeout.
func (c *Coordinator) IsActive() bool {
	t := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.shutdown && t.Sub(c.lastActivity) <= c.timeout
}

// ExpiresAt returns when the session times out absent further activity.
func (c *Coordinator) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity.Add(c.timeout)
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	t := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Active:         !c.shutdown,
		Processing:     c.processing,
		LastActivity:   c.lastActivity,
		SessionTimeout: c.timeout,
		PID:            c.pid,
		Uptime:         t.Sub(c.start),
	}
}

// RequestShutdown marks the session as finished and closes Done. Only the
// first call has an effect; it reports whether this call was that one.
func (c *Coordinator) RequestShutdown(reason string) bool {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return false
	}
	c.shutdown = true
	close(c.done)
	c.mu.Unlock()

	slog.Info("[session] shutdown requested", "reason", reason)
	return true
}

// ShutdownRequested reports whether RequestShutdown has been called.
func (c *Coordinator) ShutdownRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// Done is closed when shutdown is requested.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Monitor checks for inactivity every interval and requests shutdown once
// the timeout is exceeded. It returns when ctx is cancelled or the session
// ends.
func (c *Coordinator) Monitor(ctx context.Context, interval time.Duration) {
	slog.Info("[session] timeout monitor started", "interval", interval, "timeout", c.timeout)
	defer slog.Info("[session] timeout monitor stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
		}

		idle := c.InactiveDuration()
		if idle > c.timeout {
			slog.Info("[session] inactive, stopping", "idle", idle.Round(time.Second))
			c.RequestShutdown("inactivity timeout")
			return
		}
		if left := c.timeout - idle; left < time.Minute {
			slog.Info("[session] session expires soon", "in", left.Round(time.Second))
		}
	}
}
