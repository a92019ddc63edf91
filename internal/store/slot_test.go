package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/waterhq/internal/model"
)

func TestSlotCreate(t *testing.T) {
	ss := NewSlotStore(setupTestDB(t))

	sl, err := ss.Create(context.Background(), model.Slot{User: "Chase", Date: "2026-02-19", StartTime: "07:30", DurationMinutes: 15})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	if sl.ID == "" {
		t.Error("expected non-empty id")
	}
	if sl.StartTime != "07:30" {
		t.Errorf("start_time = %q, want %q", sl.StartTime, "07:30")
	}
	if sl.Completed {
		t.Error("new slot should not be completed")
	}
	if sl.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestSlotListForDate(t *testing.T) {
	ss := NewSlotStore(setupTestDB(t))
	ctx := context.Background()

	ss.Create(ctx, model.Slot{User: "Chase", Date: "2026-02-19", StartTime: "08:00", DurationMinutes: 15})
	ss.Create(ctx, model.Slot{User: "Mom", Date: "2026-02-20", StartTime: "06:00", DurationMinutes: 20})
	ss.Create(ctx, model.Slot{User: "Dad", Date: "2026-01-01", StartTime: "06:30", DurationMinutes: 30, Recurring: true})

	slots, err := ss.ListForDate(ctx, "2026-02-19")
	if err != nil {
		t.Fatalf("list for date: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("len = %d, want 2", len(slots))
	}
	if slots[0].User != "Dad" || !slots[0].Recurring {
		t.Errorf("first slot = %+v, want recurring Dad", slots[0])
	}
	if slots[1].User != "Chase" {
		t.Errorf("second slot user = %q, want Chase", slots[1].User)
	}

	all, _ := ss.List(ctx)
	if len(all) != 3 {
		t.Errorf("all len = %d, want 3", len(all))
	}
}

func TestSlotUpdateAndComplete(t *testing.T) {
	ss := NewSlotStore(setupTestDB(t))
	ctx := context.Background()

	sl, _ := ss.Create(ctx, model.Slot{User: "Livia", Date: "2026-02-19", StartTime: "21:00", DurationMinutes: 15})
	sl.StartTime = "21:30"
	sl.DurationMinutes = 45

	updated, err := ss.Update(ctx, *sl)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.StartTime != "21:30" || updated.DurationMinutes != 45 {
		t.Errorf("updated = %+v", updated)
	}

	done, err := ss.Complete(ctx, sl.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Completed {
		t.Error("expected completed")
	}
}

func TestSlotNotFound(t *testing.T) {
	ss := NewSlotStore(setupTestDB(t))
	ctx := context.Background()

	if _, err := ss.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get err = %v, want ErrNotFound", err)
	}
	if _, err := ss.Complete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("complete err = %v, want ErrNotFound", err)
	}
	if err := ss.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
}

func TestSlotDelete(t *testing.T) {
	ss := NewSlotStore(setupTestDB(t))
	ctx := context.Background()

	sl, _ := ss.Create(ctx, model.Slot{User: "A.J.", Date: "2026-02-19", StartTime: "10:00", DurationMinutes: 20})
	if err := ss.Delete(ctx, sl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := ss.List(ctx)
	if len(all) != 0 {
		t.Errorf("expected 0 slots after delete, got %d", len(all))
	}
}
