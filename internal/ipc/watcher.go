package ipc

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when the request directory may have new work. It uses
// fsnotify when available and always keeps a polling ticker as fallback.
// Signals are coalesced; a receiver should drain the whole directory.
type Watcher struct {
	dir    string
	poll   time.Duration
	notify chan struct{}
}

// NewWatcher watches dir, polling every poll.
func NewWatcher(dir string, poll time.Duration) *Watcher {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Watcher{dir: dir, poll: poll, notify: make(chan struct{}, 1)}
}

// C delivers a signal per batch of changes.
func (w *Watcher) C() <-chan struct{} { return w.notify }

// Run delivers signals until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("[ipc] fsnotify not available, polling only", "error", err)
	} else {
		defer fw.Close()
		if err := fw.Add(w.dir); err != nil {
			slog.Warn("[ipc] cannot watch request directory, polling only", "dir", w.dir, "error", err)
		} else {
			events, errs = fw.Events, fw.Errors
			slog.Debug("[ipc] watching request directory", "dir", w.dir)
		}
	}

	w.signal()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				slog.Warn("[ipc] fsnotify closed, polling only")
				events, errs = nil, nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write) {
				if filepath.Ext(ev.Name) == ".json" {
					w.signal()
				}
			}
		case err, ok := <-errs:
			if ok {
				slog.Warn("[ipc] fsnotify error", "error", err)
			}
		case <-ticker.C:
			w.signal()
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}
