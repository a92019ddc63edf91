package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `key, endpoint, p256dh_key, auth_key, user, updated_at`

// Upsert stores sub under sub.Key, replacing keys, owner and timestamp of an
// existing record.
func (s *PushStore) Upsert(ctx context.Context, sub model.PushSubscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (key, endpoint, p256dh_key, auth_key, user, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET endpoint = excluded.endpoint, p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key, user = excluded.user, updated_at = excluded.updated_at`,
		sub.Key, sub.Endpoint, sub.P256dhKey, sub.AuthKey, sub.User, toMillis(sub.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (s *PushStore) GetByKey(ctx context.Context, key string) (*model.PushSubscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pushCols+` FROM push_subscriptions WHERE key = ?`, key)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListAll(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pushCols+` FROM push_subscriptions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	var updated int64
	if err := scanner.Scan(&sub.Key, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.User, &updated); err != nil {
		return nil, err
	}
	sub.UpdatedAt = fromMillis(updated)
	return &sub, nil
}
