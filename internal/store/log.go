package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
)

// LogStore reads the append-only shower log. Entries are written by
// StatusStore.Release.
type LogStore struct {
	db *sql.DB
}

func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

const logCols = `id, user, started_at, ended_at, duration_seconds`

// List returns the most recent entries first.
func (s *LogStore) List(ctx context.Context, limit int) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logCols+` FROM shower_log ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list shower log: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// Since returns entries that started at or after since, oldest first.
func (s *LogStore) Since(ctx context.Context, since time.Time) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logCols+` FROM shower_log WHERE started_at >= ? ORDER BY started_at`, toMillis(since),
	)
	if err != nil {
		return nil, fmt.Errorf("list shower log since: %w", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *LogStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shower_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count shower log: %w", err)
	}
	return n, nil
}

func scanLogEntries(rows *sql.Rows) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var started, ended int64
		if err := rows.Scan(&e.ID, &e.User, &started, &ended, &e.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.StartedAt = fromMillis(started)
		e.EndedAt = fromMillis(ended)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
