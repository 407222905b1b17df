package correct

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, dir, name string, lines []string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Add(-age)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

func TestConversationLogRecent(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "old.jsonl", []string{
		`{"type":"user","message":{"content":"this is the older conversation"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"and its answer is long enough"}]}}`,
	}, time.Hour)
	writeLog(t, dir, "new.jsonl", []string{
		`{"type":"summary","summary":"ignored"}`,
		`{"type":"user","message":{"content":"please fix the build script"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Looking at it now."},{"type":"tool_use","name":"Bash"}]}}`,
		`not json`,
		`{"type":"user","message":{"content":"ok"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"short"}]}}`,
		`{"type":"user","message":{"content":[{"type":"text","text":"now run the tests please"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"All tests pass on main."}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"A reply without a question."}]}}`,
	}, 0)

	l := &ConversationLog{Dir: dir, Exchanges: 3}
	got, err := l.Recent(context.Background())
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []Exchange{
		{User: "please fix the build script", Assistant: "Looking at it now. [Used tool: Bash]"},
		{User: "now run the tests please", Assistant: "All tests pass on main."},
	}
	if len(got) != len(want) {
		t.Fatalf("Recent() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("exchange %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	l.Exchanges = 1
	got, _ = l.Recent(context.Background())
	if len(got) != 1 || got[0].User != "now run the tests please" {
		t.Errorf("Recent() with limit 1 = %+v", got)
	}
}

func TestConversationLogEmpty(t *testing.T) {
	l := &ConversationLog{Dir: t.TempDir(), Exchanges: 3}
	c, err := l.Context(context.Background())
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if c != "No recent conversation context available." {
		t.Errorf("Context() = %q", c)
	}

	unset := &ConversationLog{}
	if c, _ := unset.Context(context.Background()); c != "" {
		t.Errorf("Context() without a directory = %q, want empty", c)
	}
}

func TestFormatExchanges(t *testing.T) {
	long := strings.Repeat("a", 250)
	got := FormatExchanges([]Exchange{
		{User: "first question here", Assistant: "first answer here"},
		{User: long, Assistant: "second answer"},
	})

	want := "Recent conversation context:" +
		"\n\n1. User: first question here" +
		"\n   Assistant: first answer here" +
		"\n\n2. User: " + strings.Repeat("a", 200) + "..." +
		"\n   Assistant: second answer"
	if got != want {
		t.Errorf("FormatExchanges() =\n%s\nwant\n%s", got, want)
	}
}

type fakeRecorder struct {
	texts []string
	err   error
}

func (f fakeRecorder) RecentTexts(_ context.Context, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.texts) {
		return f.texts[:n], nil
	}
	return f.texts, nil
}

func TestHistorySource(t *testing.T) {
	h := &HistorySource{Store: fakeRecorder{texts: []string{"newest", "middle", "oldest"}}, Entries: 2}
	got, err := h.Context(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "Previously dictated:\n- middle\n- newest" {
		t.Errorf("Context() = %q", got)
	}

	empty := &HistorySource{Store: fakeRecorder{}, Entries: 2}
	if got, _ := empty.Context(context.Background()); got != "" {
		t.Errorf("Context() with no history = %q", got)
	}
}

func TestMultiSource(t *testing.T) {
	boom := errors.New("boom")

	m := MultiSource{staticSource{text: "a"}, staticSource{err: boom}, staticSource{text: ""}, staticSource{text: "b"}}
	got, err := m.Context(context.Background())
	if err != nil || got != "a\n\nb" {
		t.Errorf("Context() = %q, %v", got, err)
	}

	all := MultiSource{staticSource{err: boom}}
	if _, err := all.Context(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Context() error = %v, want boom", err)
	}
}
