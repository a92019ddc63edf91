package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "waterhq.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.S3.Configured())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("WATERHQ_PORT", "9090")
	t.Setenv("WATERHQ_TOKEN_TTL", "2h")
	t.Setenv("WATERHQ_SCHEDULER_INTERVAL", "15s")
	t.Setenv("WATERHQ_S3_BUCKET", "showers")
	t.Setenv("WATERHQ_S3_ACCESS_KEY", "ak")
	t.Setenv("WATERHQ_S3_SECRET_KEY", "sk")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 15*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, "showers", cfg.S3.Bucket)
	assert.True(t, cfg.S3.Configured())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WATERHQ_LOCATION=Europe/Helsinki\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("WATERHQ_LOCATION") })

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Helsinki", cfg.Location)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waterhq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\ns3:\n  bucket: from-file\n"), 0o600))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "from-file", cfg.S3.Bucket)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"), "")
	require.NoError(t, err)

	assert.Error(t, cfg.Validate(), "empty token secret must fail")

	cfg.TokenSecret = "0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.BackupInterval = -time.Minute
	assert.Error(t, cfg.Validate())
	cfg.BackupInterval = 0

	cfg.Location = "Mars/Olympus_Mons"
	assert.Error(t, cfg.Validate())
}
