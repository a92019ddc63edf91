package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
	"github.com/dukerupert/waterhq/internal/slot"
)

// AlertStore records which slot alerts have been dispatched.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// TryFire claims the alert for slotID and alertType. Exactly one caller per
// key gets true; everyone after that gets false.
func (s *AlertStore) TryFire(ctx context.Context, slotID string, alertType model.AlertType, firedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO slot_alerts (alert_key, slot_id, alert_type, fired_at) VALUES (?, ?, ?, ?)`,
		slot.AlertKey(slotID, alertType), slotID, string(alertType), toMillis(firedAt),
	)
	if err != nil {
		return false, fmt.Errorf("record slot alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *AlertStore) Fired(ctx context.Context, slotID string, alertType model.AlertType) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slot_alerts WHERE alert_key = ?`, slot.AlertKey(slotID, alertType),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check slot alert: %w", err)
	}
	return count > 0, nil
}

// ResetSlot forgets the alerts of a slot, so an edited slot can alert again.
func (s *AlertStore) ResetSlot(ctx context.Context, slotID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slot_alerts WHERE slot_id = ?`, slotID); err != nil {
		return fmt.Errorf("reset slot alerts: %w", err)
	}
	return nil
}

// CleanupBefore deletes alert records fired before the cutoff.
func (s *AlertStore) CleanupBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM slot_alerts WHERE fired_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("cleanup slot alerts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
