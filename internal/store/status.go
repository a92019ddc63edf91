package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
)

// StatusStore persists the singleton occupancy row and the shower log.
type StatusStore struct {
	db *sql.DB
}

func NewStatusStore(db *sql.DB) *StatusStore {
	return &StatusStore{db: db}
}

func (s *StatusStore) Status(ctx context.Context) (model.ShowerStatus, error) {
	var occupant sql.NullString
	var startedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT occupant, started_at FROM shower_status WHERE id = 1`,
	).Scan(&occupant, &startedAt)
	if err != nil {
		return model.ShowerStatus{}, fmt.Errorf("get shower status: %w", err)
	}
	if !occupant.Valid || !startedAt.Valid {
		return model.ShowerStatus{}, nil
	}
	return model.ShowerStatus{CurrentUser: occupant.String, StartedAt: fromMillis(startedAt.Int64)}, nil
}

// Claim marks the shower occupied by user. It reports false when someone
// else already holds it.
func (s *StatusStore) Claim(ctx context.Context, user string, startedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE shower_status SET occupant = ?, started_at = ?, updated_at = ?
		 WHERE id = 1 AND occupant IS NULL`,
		user, toMillis(startedAt), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim shower: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Release clears occupancy only if started_at still equals observed, and
// appends entry in the same transaction. It reports false when the session
// was already released or replaced.
func (s *StatusStore) Release(ctx context.Context, observed time.Time, entry *model.LogEntry) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE shower_status SET occupant = NULL, started_at = NULL, updated_at = ?
		 WHERE id = 1 AND started_at = ?`,
		time.Now().UTC(), toMillis(observed),
	)
	if err != nil {
		return false, fmt.Errorf("release shower: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if entry != nil {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO shower_log (user, started_at, ended_at, duration_seconds) VALUES (?, ?, ?, ?)`,
			entry.User, toMillis(entry.StartedAt), toMillis(entry.EndedAt), entry.DurationSeconds,
		)
		if err != nil {
			return false, fmt.Errorf("append shower log: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			entry.ID = id
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit release: %w", err)
	}
	return true, nil
}
