package correct

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// PromptPlaceholder in an argument is replaced by the prompt. When no
// argument contains it the prompt is written to stdin.
const PromptPlaceholder = "{prompt}"

// CommandBackend runs an external command per correction and reads the
// corrected text from stdout.
type CommandBackend struct {
	Command string
	Args    []string
}

// NewCommandBackend returns a backend running command with args.
func NewCommandBackend(command string, args []string) *CommandBackend {
	return &CommandBackend{Command: command, Args: args}
}

// Correct runs the command until it exits or ctx is done. The command runs
// in its own process group, which is killed as a whole on cancellation.
func (b *CommandBackend) Correct(ctx context.Context, prompt string) (string, error) {
	if b.Command == "" {
		return "", errors.New("correct: no command configured")
	}

	args := make([]string, len(b.Args))
	usesArg := false
	for i, a := range b.Args {
		if strings.Contains(a, PromptPlaceholder) {
			usesArg = true
		}
		args[i] = strings.ReplaceAll(a, PromptPlaceholder, prompt)
	}

	cmd := exec.CommandContext(ctx, b.Command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if !usesArg {
		cmd.Stdin = strings.NewReader(prompt)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("correct: %s: %w", b.Command, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("correct: %s: %w: %s", b.Command, err, msg)
		}
		return "", fmt.Errorf("correct: %s: %w", b.Command, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", ErrEmptyOutput
	}
	return out, nil
}
