package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func setupLoginCodeStore(t *testing.T) (*LoginCodeStore, *time.Time) {
	t.Helper()
	ls := NewLoginCodeStore(setupTestDB(t))
	now := time.Date(2026, 2, 19, 7, 0, 0, 0, time.UTC)
	ls.now = func() time.Time { return now }
	return ls, &now
}

func TestLoginCodeCreate(t *testing.T) {
	ls, _ := setupLoginCodeStore(t)

	lc, err := ls.Create(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(lc.Code) != 6 {
		t.Errorf("code length = %d, want 6", len(lc.Code))
	}
	if lc.Identifier != "a@x.com" {
		t.Errorf("identifier = %q, want %q", lc.Identifier, "a@x.com")
	}
	if got := lc.ExpiresAt.Sub(lc.CreatedAt); got != LoginCodeTTL {
		t.Errorf("ttl = %v, want %v", got, LoginCodeTTL)
	}
}

func TestLoginCodeNewCodeInvalidatesOld(t *testing.T) {
	ls, _ := setupLoginCodeStore(t)
	ctx := context.Background()

	first, _ := ls.Create(ctx, "a@x.com")
	second, _ := ls.Create(ctx, "a@x.com")

	latest, err := ls.Latest(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest id = %d, want %d (first was %d)", latest.ID, second.ID, first.ID)
	}
}

func TestLoginCodeExpiry(t *testing.T) {
	ls, now := setupLoginCodeStore(t)
	ctx := context.Background()

	ls.Create(ctx, "a@x.com")
	*now = now.Add(LoginCodeTTL)

	if _, err := ls.Latest(ctx, "a@x.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("latest err = %v, want ErrNotFound", err)
	}
	n, err := ls.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestLoginCodeAttemptsAndUse(t *testing.T) {
	ls, _ := setupLoginCodeStore(t)
	ctx := context.Background()

	lc, _ := ls.Create(ctx, "+15550100")
	for want := 1; want <= 3; want++ {
		got, err := ls.IncrementAttempts(ctx, lc.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Errorf("attempts = %d, want %d", got, want)
		}
	}

	if err := ls.MarkUsed(ctx, lc.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if _, err := ls.Latest(ctx, "+15550100"); !errors.Is(err, ErrNotFound) {
		t.Errorf("latest after use err = %v, want ErrNotFound", err)
	}
}
