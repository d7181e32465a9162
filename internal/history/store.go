// Package history persists a record of completed mirror runs so operators
// can answer "when did the last sync happen and what did it change" without
// digging through logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded mirror run.
type Run struct {
	ID           int64
	RunID        string
	StartedAt    time.Time
	Duration     time.Duration
	Outcome      string
	CommitSHA    string
	FilesAdded   int
	FilesUpdated int
	FilesDeleted int
	Error        string
}

// Store persists mirror run records.
type Store interface {
	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based run history store.
// Use ":memory:" for in-memory storage, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		commit_sha TEXT,
		files_added INTEGER NOT NULL DEFAULT 0,
		files_updated INTEGER NOT NULL DEFAULT 0,
		files_deleted INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun appends a run record.
func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, started_at, duration_ms, outcome, commit_sha, files_added, files_updated, files_deleted, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		run.RunID, run.StartedAt.Unix(), run.Duration.Milliseconds(), run.Outcome,
		run.CommitSHA, run.FilesAdded, run.FilesUpdated, run.FilesDeleted, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// below returns everything.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, run_id, started_at, duration_ms, outcome, commit_sha, files_added, files_updated, files_deleted, error FROM runs ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedUnix, durationMS int64
		var commitSHA, errMsg sql.NullString

		if err := rows.Scan(&r.ID, &r.RunID, &startedUnix, &durationMS, &r.Outcome,
			&commitSHA, &r.FilesAdded, &r.FilesUpdated, &r.FilesDeleted, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(startedUnix, 0)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CommitSHA = commitSHA.String
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
