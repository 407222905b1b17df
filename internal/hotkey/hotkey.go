// Package hotkey turns a global key chord into start/stop recording events
// for the listen command.
package hotkey

import (
	"context"
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
)

// Mode selects how the chord drives recording.
type Mode string

const (
	// ModeHold records while the chord is held down.
	ModeHold Mode = "hold"
	// ModeToggle starts on one press and stops on the next.
	ModeToggle Mode = "toggle"
)

// ParseMode validates a configured mode name. Empty means hold.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeHold:
		return ModeHold, nil
	case ModeToggle:
		return ModeToggle, nil
	}
	return "", fmt.Errorf("hotkey: unknown mode %q (want hold or toggle)", s)
}

// EventType says whether recording should start or stop.
type EventType int

const (
	EventStart EventType = iota
	EventStop
)

func (t EventType) String() string {
	if t == EventStart {
		return "start"
	}
	return "stop"
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener watches a global chord.
type Listener struct {
	keys []string
	mode Mode
	ch   chan Event

	mu        sync.Mutex
	recording bool
}

// NewListener creates a Listener for keys (lowercase names such as
// "ctrl", "shift", "r").
func NewListener(keys []string, mode Mode) *Listener {
	return &Listener{keys: keys, mode: mode, ch: make(chan Event, 16)}
}

// Events delivers start/stop events. It is closed when Run returns.
func (l *Listener) Events() <-chan Event { return l.ch }

// Run hooks the chord and blocks until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.press() })
	if l.mode == ModeHold {
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.release() })
	}

	evChan := hook.Start()
	go func() {
		<-ctx.Done()
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// press handles a chord key-down. Key repeat while held is ignored.
func (l *Listener) press() {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case !l.recording:
		l.recording = true
		l.emit(EventStart)
	case l.mode == ModeToggle:
		l.recording = false
		l.emit(EventStop)
	}
}

// release handles a chord key-up in hold mode.
func (l *Listener) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recording {
		l.recording = false
		l.emit(EventStop)
	}
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default:
	}
}
