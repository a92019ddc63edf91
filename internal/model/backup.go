package model

import "time"

type Backup struct {
	ID        int64     `json:"id"`
	S3Key     string    `json:"s3_key"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
