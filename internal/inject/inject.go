// Package inject delivers final transcripts to the focused application,
// either as simulated keystrokes or through a clipboard paste.
package inject

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

// Output methods.
const (
	MethodType  = "type"
	MethodPaste = "paste"
	MethodNone  = "none"
)

// restoreDelay gives the target application time to read the clipboard
// before the previous content is put back.
const restoreDelay = 100 * time.Millisecond

// keyboard is the subset of robotgo the injector drives.
type keyboard interface {
	Type(text string)
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
	KeyTap(key string, modifier string) error
}

type robotKeyboard struct{}

func (robotKeyboard) Type(text string) { robotgo.Type(text) }

func (robotKeyboard) ReadClipboard() (string, error) { return robotgo.ReadAll() }

func (robotKeyboard) WriteClipboard(text string) error { return robotgo.WriteAll(text) }

func (robotKeyboard) KeyTap(key, modifier string) error { return robotgo.KeyTap(key, modifier) }

// Injector types or pastes text into the active application.
type Injector struct {
	method     string
	focusDelay time.Duration
	kb         keyboard
	sleep      func(time.Duration)
}

// NewInjector creates an Injector. method is "type", "paste" or "none";
// focusDelay is waited before every output so the target window settles.
func NewInjector(method string, focusDelay time.Duration) *Injector {
	return &Injector{
		method:     method,
		focusDelay: focusDelay,
		kb:         robotKeyboard{},
		sleep:      time.Sleep,
	}
}

// Method returns the configured output method.
func (inj *Injector) Method() string { return inj.method }

// Inject sends text to the active application. Blank text is a no-op.
func (inj *Injector) Inject(text string) error {
	if strings.TrimSpace(text) == "" || inj.method == MethodNone {
		return nil
	}
	if inj.focusDelay > 0 {
		inj.sleep(inj.focusDelay)
	}

	switch inj.method {
	case MethodPaste:
		return inj.paste(text)
	default:
		inj.kb.Type(text)
	}
	slog.Debug("[inject] text delivered", "method", inj.method, "chars", len(text))
	return nil
}

// paste copies text to the clipboard and sends the platform paste chord.
// The previous clipboard content is restored afterwards, best effort.
func (inj *Injector) paste(text string) error {
	prev, _ := inj.kb.ReadClipboard()

	if err := inj.kb.WriteClipboard(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}
	mod := pasteModifier(runtime.GOOS)
	if err := inj.kb.KeyTap("v", mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", mod, err)
	}

	inj.sleep(restoreDelay)
	_ = inj.kb.WriteClipboard(prev)
	return nil
}

func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
