package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store, for deployments that centralize
// the transactional log across multiple engine instances or that already
// operate a MySQL cluster for other services.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection using dsn (see the go-sql-driver/mysql
// DSN format) and ensures the transactional log table exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS walker_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			iteration INT NOT NULL,
			walker_id INT NOT NULL,
			blob LONGBLOB NOT NULL,
			INDEX idx_walker_log_run (run_id, id)
		) ENGINE=InnoDB
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// Append implements Store.
func (s *MySQLStore) Append(ctx context.Context, runID string, record WalkerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO walker_log (run_id, iteration, walker_id, blob) VALUES (?, ?, ?, ?)`,
		runID, record.Iteration, record.WalkerID, record.Blob)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Replay implements Store.
func (s *MySQLStore) Replay(ctx context.Context, runID string) ([]WalkerRecord, error) {
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
func (s *MySQLStore) Truncate(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM walker_log WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("store: truncate: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
