package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AllowlistStore keeps one row per (path, identifier). Callers pass
// normalized identifiers; the store never rewrites them.
type AllowlistStore struct {
	db *sql.DB
}

func NewAllowlistStore(db *sql.DB) *AllowlistStore {
	return &AllowlistStore{db: db}
}

func (s *AllowlistStore) Contains(ctx context.Context, path, identifier string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM allowlist WHERE path = ? AND identifier = ?`, path, identifier,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check allowlist %s: %w", path, err)
	}
	return count > 0, nil
}

// Add inserts identifier under path. It reports false if it was already there.
func (s *AllowlistStore) Add(ctx context.Context, path, identifier string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO allowlist (path, identifier, created_at) VALUES (?, ?, ?)`,
		path, identifier, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("add to allowlist %s: %w", path, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *AllowlistStore) Remove(ctx context.Context, path, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM allowlist WHERE path = ? AND identifier = ?`, path, identifier)
	if err != nil {
		return fmt.Errorf("remove from allowlist %s: %w", path, err)
	}
	return nil
}

func (s *AllowlistStore) List(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier FROM allowlist WHERE path = ? ORDER BY identifier`, path,
	)
	if err != nil {
		return nil, fmt.Errorf("list allowlist %s: %w", path, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
