package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite-backed Store, suitable for
// development and single-machine runs that want crash recovery without
// standing up a database server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures the transactional log table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS walker_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			walker_id INTEGER NOT NULL,
			blob BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_walker_log_run ON walker_log(run_id, id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, runID string, record WalkerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO walker_log (run_id, iteration, walker_id, blob) VALUES (?, ?, ?, ?)`,
		runID, record.Iteration, record.WalkerID, record.Blob)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Replay implements Store.
func (s *SQLiteStore) Replay(ctx context.Context, runID string) ([]WalkerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, walker_id, blob FROM walker_log WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: replay: %w", err)
	}
	defer rows.Close()

	var out []WalkerRecord
	for rows.Next() {
		var rec WalkerRecord
		if err := rows.Scan(&rec.Iteration, &rec.WalkerID, &rec.Blob); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return out, nil
}

// Truncate implements Store.
func (s *SQLiteStore) Truncate(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM walker_log WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("store: truncate: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
