package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/waterhq/internal/model"
)

// BackupStore records uploaded snapshots. The objects themselves live in S3.
type BackupStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db, now: time.Now}
}

func (s *BackupStore) Create(ctx context.Context, s3Key string, sizeBytes int64) (*model.Backup, error) {
	now := fromMillis(toMillis(s.now()))
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (s3_key, size_bytes, created_at) VALUES (?, ?, ?)`,
		s3Key, sizeBytes, toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("record backup %s: %w", s3Key, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("record backup %s: %w", s3Key, err)
	}
	return &model.Backup{ID: id, S3Key: s3Key, SizeBytes: sizeBytes, CreatedAt: now}, nil
}

// List returns up to limit backups, newest first.
func (s *BackupStore) List(ctx context.Context, limit int) ([]model.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, s3_key, size_bytes, created_at FROM backups ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		var (
			b  model.Backup
			ms int64
		)
		if err := rows.Scan(&b.ID, &b.S3Key, &b.SizeBytes, &ms); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		b.CreatedAt = fromMillis(ms)
		backups = append(backups, b)
	}
	return backups, rows.Err()
}
