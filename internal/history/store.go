// Package history keeps a local SQLite log of delivered transcripts and the
// aggregate statistics derived from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one completed transcription.
type Entry struct {
	ID             string
	CreatedAt      time.Time
	Raw            string
	Text           string
	Path           string // correction path: fast, corrected or fallback
	Confidence     float64
	Device         string
	Model          string
	AudioSeconds   float64
	ProcessingTime time.Duration
	CorrectionTime time.Duration
	Edits          int
}

// Stats aggregates every recorded entry.
type Stats struct {
	Processed         int
	Fast              int
	Corrected         int
	Fallback          int
	AvgProcessingTime time.Duration
	AvgCorrectionTime time.Duration
}

// Store is a SQLite-backed transcript history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS transcripts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		raw TEXT NOT NULL,
		text TEXT NOT NULL,
		path TEXT NOT NULL,
		confidence REAL NOT NULL,
		device TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		audio_seconds REAL NOT NULL DEFAULT 0,
		processing_ms REAL NOT NULL,
		correction_ms REAL NOT NULL DEFAULT 0,
		edits INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transcripts_path ON transcripts(path);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an entry. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts
			(id, created_at, raw, text, path, confidence, device, model,
			 audio_seconds, processing_ms, correction_ms, edits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UnixNano(), e.Raw, e.Text, e.Path, e.Confidence, e.Device, e.Model,
		e.AudioSeconds, ms(e.ProcessingTime), ms(e.CorrectionTime), e.Edits,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, raw, text, path, confidence, device, model,
		       audio_seconds, processing_ms, correction_ms, edits
		FROM transcripts
		ORDER BY seq DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			created            int64
			procMS, correction float64
		)
		if err := rows.Scan(&e.ID, &created, &e.Raw, &e.Text, &e.Path, &e.Confidence, &e.Device, &e.Model,
			&e.AudioSeconds, &procMS, &correction, &e.Edits); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		e.ProcessingTime = fromMS(procMS)
		e.CorrectionTime = fromMS(correction)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentTexts returns the final text of up to n non-empty entries, newest
// first.
func (s *Store) RecentTexts(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM transcripts
		WHERE text != ''
		ORDER BY seq DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query texts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats aggregates all entries.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st         Stats
		avgProc    sql.NullFloat64
		avgCorrect sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN path = 'fast' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN path = 'corrected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN path = 'fallback' THEN 1 ELSE 0 END), 0),
			AVG(processing_ms),
			AVG(CASE WHEN path != 'fast' THEN correction_ms END)
		FROM transcripts`).Scan(&st.Processed, &st.Fast, &st.Corrected, &st.Fallback, &avgProc, &avgCorrect)
	if err != nil {
		return Stats{}, fmt.Errorf("history: stats: %w", err)
	}
	st.AvgProcessingTime = fromMS(avgProc.Float64)
	st.AvgCorrectionTime = fromMS(avgCorrect.Float64)
	return st, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMS(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
