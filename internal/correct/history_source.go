package correct

import (
	"context"
	"fmt"
	"strings"
)

// Recorder lists recently delivered transcripts, newest first.
type Recorder interface {
	RecentTexts(ctx context.Context, n int) ([]string, error)
}

// HistorySource offers the last few dictated transcripts as context.
type HistorySource struct {
	Store   Recorder
	Entries int
}

// Context lists recent transcripts oldest first.
func (h *HistorySource) Context(ctx context.Context) (string, error) {
	if h.Store == nil || h.Entries <= 0 {
		return "", nil
	}
	texts, err := h.Store.RecentTexts(ctx, h.Entries)
	if err != nil {
		return "", fmt.Errorf("correct: recent transcripts: %w", err)
	}
	if len(texts) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Previously dictated:")
	for i := len(texts) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "\n- %s", truncate(texts[i], maxExchangeText))
	}
	return b.String(), nil
}
