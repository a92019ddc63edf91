package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/waterhq/internal/database"
	"github.com/dukerupert/waterhq/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

var testConfig = Config{
	S3:         S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
	Passphrase: "correct horse battery staple",
}

func setupManager(t *testing.T) (*Manager, *mockS3Client, *store.BackupStore) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "water.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := newMockS3()
	backups := store.NewBackupStore(db)
	m := newManager(client, testConfig, db, backups, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return m, client, backups
}

func TestNewManagerRequiresConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no passphrase", Config{S3: testConfig.S3}},
		{"no bucket", Config{S3: S3Config{AccessKey: "k", SecretKey: "s"}, Passphrase: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.cfg, nil, nil, slog.Default())
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}

	if _, err := NewManager(testConfig, nil, nil, slog.Default()); err != nil {
		t.Errorf("configured manager: %v", err)
	}
}

func TestRunUploadsEncryptedSnapshot(t *testing.T) {
	m, client, backups := setupManager(t)
	ctx := context.Background()

	rec, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantKey := "waterhq/backup-2026-03-04T050607Z.db.enc"
	if rec.S3Key != wantKey {
		t.Errorf("key = %q, want %q", rec.S3Key, wantKey)
	}
	data, ok := client.objects[wantKey]
	if !ok {
		t.Fatalf("object %q not uploaded", wantKey)
	}
	if rec.SizeBytes != int64(len(data)) {
		t.Errorf("size = %d, want %d", rec.SizeBytes, len(data))
	}
	if bytes.Contains(data, sqliteHeader) {
		t.Error("uploaded object contains plaintext SQLite header")
	}

	list, err := backups.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].S3Key != wantKey {
		t.Errorf("recorded backups = %+v", list)
	}
}

func TestRunUploadFailureRecordsNothing(t *testing.T) {
	m, client, backups := setupManager(t)
	client.putErr = errors.New("bucket gone")

	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	list, err := backups.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("recorded %d backups after failed upload", len(list))
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	rec, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(ctx, rec.S3Key, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	restored, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open restored db: %v", err)
	}
	defer restored.Close()
	// The snapshot predates its own backup row.
	list, err := store.NewBackupStore(restored).List(ctx, 10)
	if err != nil {
		t.Fatalf("List restored: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("restored backups = %d, want 0", len(list))
	}
}

func TestRestoreRejectsNonSQLite(t *testing.T) {
	m, client, _ := setupManager(t)
	sealed, err := Seal([]byte("not a database"), testConfig.Passphrase)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	client.objects["waterhq/bogus.db.enc"] = sealed

	dst := filepath.Join(t.TempDir(), "restored.db")
	err = m.Restore(context.Background(), "waterhq/bogus.db.enc", dst)
	if !errors.Is(err, ErrNotSQLite) {
		t.Errorf("err = %v, want ErrNotSQLite", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("destination written for invalid backup")
	}
}

func TestRestoreMissingKey(t *testing.T) {
	m, _, _ := setupManager(t)
	err := m.Restore(context.Background(), "waterhq/nope.db.enc", filepath.Join(t.TempDir(), "x.db"))
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("err = %v, want download error naming the key", err)
	}
}

func TestStopSafety(t *testing.T) {
	m, _, _ := setupManager(t)

	m.Stop()

	m.Start(context.Background(), time.Hour)
	m.Start(context.Background(), time.Hour)
	m.Stop()
	m.Stop()
}
