package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/waterhq/internal/model"
)

type SlotStore struct {
	db *sql.DB
}

func NewSlotStore(db *sql.DB) *SlotStore {
	return &SlotStore{db: db}
}

const slotCols = `id, user, date, start_time, duration_minutes, recurring, completed, created_at, updated_at`

func scanSlot(scanner interface{ Scan(...any) error }) (*model.Slot, error) {
	var sl model.Slot
	var recurring, completed int
	err := scanner.Scan(
		&sl.ID, &sl.User, &sl.Date, &sl.StartTime, &sl.DurationMinutes,
		&recurring, &completed, &sl.CreatedAt, &sl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sl.Recurring = recurring != 0
	sl.Completed = completed != 0
	return &sl, nil
}

// Create stores a new slot under a fresh random id.
func (s *SlotStore) Create(ctx context.Context, sl model.Slot) (*model.Slot, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (id, user, date, start_time, duration_minutes, recurring, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, sl.User, sl.Date, sl.StartTime, sl.DurationMinutes, boolToInt(sl.Recurring), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SlotStore) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+slotCols+` FROM slots WHERE id = ?`, id)
	sl, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	return sl, nil
}

// List returns every slot ordered by date and start time.
func (s *SlotStore) List(ctx context.Context) ([]model.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+slotCols+` FROM slots ORDER BY date, start_time`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// ListForDate returns slots dated date plus every recurring slot.
func (s *SlotStore) ListForDate(ctx context.Context, date string) ([]model.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+slotCols+` FROM slots WHERE date = ? OR recurring = 1 ORDER BY start_time`, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list slots for %s: %w", date, err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

func (s *SlotStore) Update(ctx context.Context, sl model.Slot) (*model.Slot, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE slots SET user = ?, date = ?, start_time = ?, duration_minutes = ?, recurring = ?, completed = ?, updated_at = ?
		 WHERE id = ?`,
		sl.User, sl.Date, sl.StartTime, sl.DurationMinutes, boolToInt(sl.Recurring), boolToInt(sl.Completed), time.Now().UTC(), sl.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update slot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, sl.ID)
}

// Complete marks a slot done so no further alerts fire for it.
func (s *SlotStore) Complete(ctx context.Context, id string) (*model.Slot, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE slots SET completed = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("complete slot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *SlotStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSlots(rows *sql.Rows) ([]model.Slot, error) {
	var slots []model.Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *sl)
	}
	return slots, rows.Err()
}
