// Package history persists a summary of every sync run in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"prsheet/internal/source"
	"prsheet/internal/syncer"
)

// Run is one stored run.
type Run struct {
	ID            string
	StartedAt     time.Time
	Elapsed       time.Duration
	Outcome       string
	Phase         string
	Cause         string
	Updates       int
	Inserts       int
	Moves         int
	SourcesFailed int
}

// FromResult summarises a driver result and the collection that fed it.
func FromResult(res syncer.Result, report source.Report) Run {
	r := Run{
		ID:            res.RunID,
		StartedAt:     res.Started,
		Elapsed:       res.Elapsed,
		Outcome:       res.Outcome(),
		Phase:         string(res.Phase),
		Updates:       res.Updates,
		Inserts:       res.Inserts,
		Moves:         res.Moves,
		SourcesFailed: len(report.Failed),
	}
	if res.Failure != nil {
		r.Phase = string(res.Failure.Phase)
		r.Cause = res.Failure.Cause.Error()
	}
	return r
}

// Store implements run history on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A :memory: database lives per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		phase TEXT NOT NULL,
		cause TEXT,
		updates INTEGER NOT NULL DEFAULT 0,
		inserts INTEGER NOT NULL DEFAULT 0,
		moves INTEGER NOT NULL DEFAULT 0,
		sources_failed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores r, replacing any run with the same id.
func (s *Store) Record(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, elapsed_ms, outcome, phase, cause, updates, inserts, moves, sources_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixMilli(), r.Elapsed.Milliseconds(), r.Outcome, r.Phase, r.Cause,
		r.Updates, r.Inserts, r.Moves, r.SourcesFailed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, elapsed_ms, outcome, phase, cause, updates, inserts, moves, sources_failed
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			started   int64
			elapsedMS int64
			cause     sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &elapsedMS, &r.Outcome, &r.Phase, &cause,
			&r.Updates, &r.Inserts, &r.Moves, &r.SourcesFailed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.Cause = cause.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
