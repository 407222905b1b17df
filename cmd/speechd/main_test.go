package main

import (
	"strings"
	"testing"
	"time"
)

func TestCommandTree(t *testing.T) {
	want := []string{"run", "ping", "transcribe", "status", "listen", "history", "models", "config"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
	for _, path := range [][]string{{"models", "download"}, {"models", "list"}, {"config", "init"}} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("command %q not registered: %v", strings.Join(path, " "), err)
		}
	}
}

func TestRunRejectsBadTimeout(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgFile = ""

	for _, arg := range []string{"soon", "0", "-5"} {
		err := runDaemon(runCmd, []string{arg})
		if err == nil || !strings.Contains(err.Error(), "invalid timeout") {
			t.Errorf("runDaemon(%q) error = %v, want invalid timeout", arg, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSeconds(t *testing.T) {
	if got := seconds(90.4); got != 90*time.Second {
		t.Errorf("seconds(90.4) = %v", got)
	}
}
