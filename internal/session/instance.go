package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by AcquireInstance when a responsive daemon
// owns the marker.
var ErrAlreadyRunning = errors.New("session: daemon already running")

// Existing describes a daemon found through its marker file.
type Existing struct {
	PID        int
	Status     *Snapshot
	Responsive bool
}

// CheckExisting inspects the marker at pidPath. It returns nil when there is
// no marker or its process is gone. A live process is Responsive only when
// its status file was written within recency.
func CheckExisting(pidPath, statusPath string, recency time.Duration) *Existing {
	pid, err := readPID(pidPath)
	if err != nil {
		// Missing or unparseable marker.
		return nil
	}
	if pid == os.Getpid() || !processAlive(pid) {
		return nil
	}

	ex := &Existing{PID: pid}
	snap, err := ReadStatus(statusPath)
	if err != nil {
		return ex
	}
	ex.Status = &snap
	ex.Responsive = snap.Age(time.Now()) < recency
	return ex
}

// Instance is the marker file owned by this process.
type Instance struct {
	path string
	pid  int
}

// claimGrace is how long a freshly claimed marker is honoured before its
// owner has published a status file.
const claimGrace = 10 * time.Second

// AcquireInstance claims the marker at pidPath with an exclusive create.
// When a responsive or still-starting daemon already holds it,
// ErrAlreadyRunning is returned and nothing is written. Stale markers (dead
// process or silent status file) are replaced once; losing that second
// create to another daemon also yields ErrAlreadyRunning.
func AcquireInstance(pidPath, statusPath string, recency time.Duration) (*Instance, error) {
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o755); err != nil {
		return nil, fmt.Errorf("session: create pid directory: %w", err)
	}

	pid := os.Getpid()
	for attempt := 0; ; attempt++ {
		err := createMarker(pidPath, pid)
		if err == nil {
			return &Instance{path: pidPath, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("session: write pid file: %w", err)
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%w (marker claimed concurrently)", ErrAlreadyRunning)
		}

		ex := CheckExisting(pidPath, statusPath, recency)
		if ex != nil && ex.Responsive {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, ex.PID)
		}
		if starting(pidPath, statusPath, time.Now()) {
			return nil, fmt.Errorf("%w (starting)", ErrAlreadyRunning)
		}
		if ex != nil {
			slog.Warn("[session] replacing unresponsive daemon marker", "pid", ex.PID)
		}
		if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("session: remove stale pid file: %w", err)
		}
	}
}

func createMarker(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// starting reports whether the marker was claimed moments ago by another
// live daemon that has not written a status since.
func starting(pidPath, statusPath string, now time.Time) bool {
	fi, err := os.Stat(pidPath)
	if err != nil || now.Sub(fi.ModTime()) >= claimGrace {
		return false
	}
	if fi.Size() == 0 {
		// Created, pid not written yet.
		return true
	}
	pid, err := readPID(pidPath)
	if err != nil || pid == os.Getpid() || !processAlive(pid) {
		return false
	}
	snap, err := ReadStatus(statusPath)
	return err != nil || FromUnix(snap.Timestamp).Before(fi.ModTime())
}

// Release removes the marker if it still holds our pid.
func (i *Instance) Release() error {
	if i == nil {
		return nil
	}
	pid, err := readPID(i.path)
	if err != nil || pid != i.pid {
		return nil
	}
	if err := os.Remove(i.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove pid file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("session: parse pid file: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("session: invalid pid %d", pid)
	}
	return pid, nil
}

// processAlive sends signal 0 to pid. EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
