// Package history persists finished batch reports in sqlite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"audio-workbench/internal/domain"
)

// ErrNotFound is returned by Get for unknown batch IDs.
var ErrNotFound = errors.New("batch not found")

// Store records batch results.
type Store struct {
	db *sql.DB
}

// Open opens (and creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		lane TEXT NOT NULL,
		status TEXT NOT NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		fail_count INTEGER NOT NULL DEFAULT 0,
		item_count INTEGER NOT NULL DEFAULT 0,
		output_dir TEXT NOT NULL DEFAULT '',
		summary_path TEXT NOT NULL DEFAULT '',
		summary_error TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL,
		started_at DATETIME,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_batches_finished ON batches(finished_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts or replaces the report of one batch.
func (s *Store) Record(ctx context.Context, r domain.BatchResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (id, lane, status, success_count, fail_count, item_count,
			output_dir, summary_path, summary_error, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status,
			success_count=excluded.success_count, fail_count=excluded.fail_count,
			summary_path=excluded.summary_path, summary_error=excluded.summary_error,
			result=excluded.result, finished_at=excluded.finished_at`,
		r.ID, string(r.Lane), string(r.Status), r.SuccessCount, r.FailCount, len(r.Items),
		r.OutputDir, r.SummaryPath, r.SummaryError, string(data),
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record batch %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit batches, most recently finished first. A
// non-empty lane filters by lane.
func (s *Store) List(ctx context.Context, lane domain.Lane, limit int) ([]domain.BatchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT result FROM batches"
	args := []any{}
	if lane != "" {
		query += " WHERE lane = ?"
		args = append(args, string(lane))
	}
	query += " ORDER BY finished_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BatchResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r domain.BatchResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns one batch by ID.
func (s *Store) Get(ctx context.Context, id string) (domain.BatchResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT result FROM batches WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BatchResult{}, ErrNotFound
	}
	if err != nil {
		return domain.BatchResult{}, err
	}
	var r domain.BatchResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return domain.BatchResult{}, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return r, nil
}

// Prune deletes batches finished before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM batches WHERE finished_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
