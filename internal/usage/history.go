package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Attempt is one scored reading.
type Attempt struct {
	SentenceID string
	Target     string
	Transcript string
	Score      int
	At         time.Time
}

// Summary aggregates all attempts.
type Summary struct {
	Attempts int
	Average  float64
	Best     int
}

// History is a SQLite-backed [Store] that also keeps scored attempts.
type History struct {
	db *sql.DB
}

var _ Store = (*History)(nil)

// OpenHistory opens or creates the database at path and applies
// migrations.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("usage: create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open %q: %w", path, err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	h := &History{db: db}
	if err := h.migrate(); err != nil {
		return nil, errors.Join(fmt.Errorf("usage: migrate %q: %w", path, err), db.Close())
	}
	return h, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage (
			sentence_id TEXT PRIMARY KEY,
			listened INTEGER NOT NULL DEFAULT 0,
			read INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY,
			sentence_id TEXT NOT NULL,
			target TEXT NOT NULL,
			transcript TEXT NOT NULL,
			score INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_at ON attempts(at);`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Increment implements [Store].
func (h *History) Increment(ctx context.Context, sentenceID string, kind Kind) (Count, error) {
	var stmt string
	switch kind {
	case Listened:
		stmt = `INSERT INTO usage (sentence_id, listened) VALUES (?, 1)
			ON CONFLICT(sentence_id) DO UPDATE SET listened = listened + 1`
	case Read:
		stmt = `INSERT INTO usage (sentence_id, read) VALUES (?, 1)
			ON CONFLICT(sentence_id) DO UPDATE SET read = read + 1`
	default:
		return Count{}, fmt.Errorf("usage: unknown kind %q", kind)
	}
	if _, err := h.db.ExecContext(ctx, stmt, sentenceID); err != nil {
		return Count{}, fmt.Errorf("usage: increment %s: %w", kind, err)
	}
	var c Count
	err := h.db.QueryRowContext(ctx,
		`SELECT listened, read FROM usage WHERE sentence_id = ?`, sentenceID,
	).Scan(&c.Listened, &c.Read)
	if err != nil {
		return Count{}, fmt.Errorf("usage: read count: %w", err)
	}
	return c, nil
}

// Counts implements [Store].
func (h *History) Counts(ctx context.Context) (Counts, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT sentence_id, listened, read FROM usage`)
	if err != nil {
		return nil, fmt.Errorf("usage: query counts: %w", err)
	}
	defer rows.Close()

	out := Counts{}
	for rows.Next() {
		var (
			id string
			c  Count
		)
		if err := rows.Scan(&id, &c.Listened, &c.Read); err != nil {
			return nil, fmt.Errorf("usage: scan count: %w", err)
		}
		out[id] = c
	}
	return out, rows.Err()
}

// RecordAttempt stores a scored reading. A zero At is set to now.
func (h *History) RecordAttempt(ctx context.Context, a Attempt) error {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO attempts (sentence_id, target, transcript, score, at) VALUES (?, ?, ?, ?, ?)`,
		a.SentenceID, a.Target, a.Transcript, a.Score, a.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("usage: record attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT sentence_id, target, transcript, score, at FROM attempts ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("usage: query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a  Attempt
			at string
		)
		if err := rows.Scan(&a.SentenceID, &a.Target, &a.Transcript, &a.Score, &at); err != nil {
			return nil, fmt.Errorf("usage: scan attempt: %w", err)
		}
		a.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("usage: parse attempt time: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summarize aggregates every stored attempt.
func (h *History) Summarize(ctx context.Context) (Summary, error) {
	var (
		s    Summary
		avg  sql.NullFloat64
		best sql.NullInt64
	)
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(score), MAX(score) FROM attempts`,
	).Scan(&s.Attempts, &avg, &best)
	if err != nil {
		return Summary{}, fmt.Errorf("usage: summarize: %w", err)
	}
	s.Average = avg.Float64
	s.Best = int(best.Int64)
	return s, nil
}
