// Package ledger records upload outcomes in SQLite so failed uploads can be
// found and re-sent later.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status of the last upload attempt for a file.
type Status string

const (
	StatusUploaded Status = "uploaded"
	StatusFailed   Status = "failed"
)

// Entry is one file's upload history.
type Entry struct {
	Project   string
	File      string
	Status    Status
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// Store wraps the ledger database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// A single connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS uploads (
    project TEXT NOT NULL,
    file TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('uploaded', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 1,
    last_error TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (project, file)
);
CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(project, status);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return nil
}

// Record stores the outcome of one upload attempt. uploadErr nil means success.
func (s *Store) Record(ctx context.Context, project, file string, uploadErr error) error {
	status := StatusUploaded
	msg := ""
	if uploadErr != nil {
		status = StatusFailed
		msg = uploadErr.Error()
	}

	query := `
		INSERT INTO uploads (project, file, status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(project, file) DO UPDATE SET
			status = excluded.status,
			attempts = uploads.attempts + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, project, file, string(status), msg, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to record upload of %s: %w", file, err)
	}
	return nil
}

// Get returns the entry for one file.
func (s *Store) Get(ctx context.Context, project, file string) (Entry, error) {
	query := `
		SELECT project, file, status, attempts, last_error, updated_at
		FROM uploads
		WHERE project = ? AND file = ?
	`
	var e Entry
	var status string
	err := s.db.QueryRowContext(ctx, query, project, file).Scan(
		&e.Project, &e.File, &status, &e.Attempts, &e.LastError, &e.UpdatedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load upload of %s: %w", file, err)
	}
	e.Status = Status(status)
	return e, nil
}

// Failed lists files whose last attempt failed, in canonical order.
func (s *Store) Failed(ctx context.Context, project string) ([]Entry, error) {
	query := `
		SELECT project, file, status, attempts, last_error, updated_at
		FROM uploads
		WHERE project = ? AND status = ?
		ORDER BY file
	`
	rows, err := s.db.QueryContext(ctx, query, project, string(StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to list failed uploads: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.Project, &e.File, &status, &e.Attempts, &e.LastError, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
