// Package backup snapshots the SQLite database, encrypts it with a
// passphrase and uploads it to S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/waterhq/internal/model"
)

var (
	ErrNotConfigured = errors.New("backup not configured: S3 bucket, credentials and passphrase are required")
	ErrNotSQLite     = errors.New("decrypted backup is not a SQLite database")
)

const keyPrefix = "waterhq/"

var sqliteHeader = []byte("SQLite format 3\x00")

type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Recorder persists a row per completed upload.
type Recorder interface {
	Create(ctx context.Context, s3Key string, sizeBytes int64) (*model.Backup, error)
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Config struct {
	S3         S3Config
	Passphrase string
}

func (c Config) configured() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

type Manager struct {
	db       *sql.DB
	recorder Recorder
	client   s3Client
	bucket   string
	pass     string
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager returns ErrNotConfigured unless S3 and a passphrase are set.
func NewManager(cfg Config, db *sql.DB, recorder Recorder, logger *slog.Logger) (*Manager, error) {
	if !cfg.configured() {
		return nil, ErrNotConfigured
	}
	return newManager(newS3Client(cfg.S3), cfg, db, recorder, logger), nil
}

func newManager(client s3Client, cfg Config, db *sql.DB, recorder Recorder, logger *slog.Logger) *Manager {
	return &Manager{
		db:       db,
		recorder: recorder,
		client:   client,
		bucket:   cfg.S3.Bucket,
		pass:     cfg.Passphrase,
		now:      time.Now,
		logger:   logger,
	}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Run takes a consistent snapshot with VACUUM INTO, encrypts it, uploads it
// and records the upload.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	tmpDir, err := os.MkdirTemp("", "waterhq-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}
	plain, err := os.ReadFile(snapshot)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	sealed, err := Seal(plain, m.pass)
	if err != nil {
		return nil, fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := keyPrefix + "backup-" + m.now().UTC().Format("2006-01-02T150405Z") + ".db.enc"
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return nil, fmt.Errorf("upload to s3: %w", err)
	}

	rec, err := m.recorder.Create(ctx, key, int64(len(sealed)))
	if err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}
	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return rec, nil
}

// Restore downloads key, decrypts it and writes the database to dstPath.
// The live database is never touched; swapping files is left to the operator.
func (m *Manager) Restore(ctx context.Context, key, dstPath string) error {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	plain, err := Open(sealed, m.pass)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(plain, sqliteHeader) {
		return ErrNotSQLite
	}
	if err := os.WriteFile(dstPath, plain, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", dstPath, err)
	}
	return nil
}

// Start runs a backup every interval until Stop or ctx is done.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for it.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
