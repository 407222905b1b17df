package correct

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	minExchangeText = 10
	maxExchangeText = 200
)

// Exchange is one user message and the reply that followed it.
type Exchange struct {
	User      string
	Assistant string
}

// ConversationLog reads recent exchanges from the newest *.jsonl
// conversation transcript in Dir.
type ConversationLog struct {
	Dir       string
	Exchanges int
}

// DefaultConversationDir returns the transcript directory for a project
// rooted at cwd: ~/.claude/projects/<cwd with slashes as dashes>.
func DefaultConversationDir(cwd string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects", strings.ReplaceAll(cwd, "/", "-"))
}

// Context formats the last exchanges for a correction prompt.
func (l *ConversationLog) Context(ctx context.Context) (string, error) {
	if l.Dir == "" {
		return "", nil
	}
	ex, err := l.Recent(ctx)
	if err != nil {
		return "", err
	}
	return FormatExchanges(ex), nil
}

// Recent returns up to l.Exchanges exchanges from the newest transcript,
// oldest first. Messages shorter than 10 characters are skipped.
func (l *ConversationLog) Recent(ctx context.Context) ([]Exchange, error) {
	path, err := newestTranscript(l.Dir)
	if err != nil || path == "" {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("correct: open conversation: %w", err)
	}
	defer f.Close()

	var (
		all     []Exchange
		pending string
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var e logEntry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		if e.Type != "user" && e.Type != "assistant" {
			continue
		}
		text := e.Message.text()
		if utf8.RuneCountInString(text) < minExchangeText {
			continue
		}
		switch {
		case e.Type == "user":
			pending = text
		case pending != "":
			all = append(all, Exchange{User: pending, Assistant: text})
			pending = ""
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("correct: read conversation: %w", err)
	}

	if n := l.Exchanges; n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// FormatExchanges renders exchanges as the context block of a prompt.
func FormatExchanges(ex []Exchange) string {
	if len(ex) == 0 {
		return "No recent conversation context available."
	}
	var b strings.Builder
	b.WriteString("Recent conversation context:")
	for i, e := range ex {
		fmt.Fprintf(&b, "\n\n%d. User: %s", i+1, truncate(e.User, maxExchangeText))
		fmt.Fprintf(&b, "\n   Assistant: %s", truncate(e.Assistant, maxExchangeText))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func newestTranscript(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return "", fmt.Errorf("correct: list conversations: %w", err)
	}
	var (
		newest string
		mtime  int64
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if t := info.ModTime().UnixNano(); newest == "" || t > mtime {
			newest, mtime = p, t
		}
	}
	return newest, nil
}

type logEntry struct {
	Type    string     `json:"type"`
	Message logMessage `json:"message"`
}

type logMessage struct {
	Content json.RawMessage `json:"content"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

// text flattens message content, which is either a plain string or a list
// of typed items.
func (m logMessage) text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(m.Content, &s) == nil {
		return strings.TrimSpace(s)
	}
	var items []contentItem
	if json.Unmarshal(m.Content, &items) != nil {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case "text":
			parts = append(parts, it.Text)
		case "tool_use":
			name := it.Name
			if name == "" {
				name = "unknown"
			}
			parts = append(parts, "[Used tool: "+name+"]")
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// MultiSource joins the non-empty context of several sources.
type MultiSource []ContextSource

// Context concatenates each source's context. A failing source is skipped
// unless every source fails.
func (m MultiSource) Context(ctx context.Context) (string, error) {
	var (
		parts   []string
		lastErr error
		failed  int
	)
	for _, s := range m {
		c, err := s.Context(ctx)
		if err != nil {
			lastErr = err
			failed++
			continue
		}
		if c != "" {
			parts = append(parts, c)
		}
	}
	if failed > 0 && failed == len(m) {
		return "", lastErr
	}
	return strings.Join(parts, "\n\n"), nil
}
