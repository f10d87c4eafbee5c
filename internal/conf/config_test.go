package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: s3cret
database:
  driver: sqlite
  path: /tmp/archiver.db
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, "10 GB", cfg.Storage.DefaultQuota)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.EvictInterval)
	assert.Equal(t, GuardLocal, cfg.Scheduler.Guard)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	p := cfg.Archive.Policy()
	assert.Equal(t, 30*24*time.Hour, p.IdleThreshold)
	assert.Equal(t, 0.80, p.QuotaThreshold)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
auth:
  jwt_secret: file-secret
database:
  driver: sqlite
  path: archiver.db
archive:
  idle_days: 60
  quota_threshold: 0.9
scheduler:
  sweep_interval: 6h
  guard: file
`)
	t.Setenv("ARCHIVER_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("ARCHIVER_STORAGE_DEFAULT_QUOTA", "500 MB")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "500 MB", cfg.Storage.DefaultQuota)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.SweepInterval)
	assert.Equal(t, GuardFile, cfg.Scheduler.Guard)

	p := cfg.Archive.Policy()
	assert.Equal(t, 60*24*time.Hour, p.IdleThreshold)
	assert.Equal(t, 0.9, p.QuotaThreshold)
	assert.Equal(t, 20, p.MaxIterations)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "database: {driver: sqlite, path: a.db}"},
		{"redis guard without redis", "auth: {jwt_secret: x}\ndatabase: {driver: sqlite, path: a.db}\nscheduler: {guard: redis}"},
		{"rate limit without redis", "auth: {jwt_secret: x, rate_limit: {enabled: true}}\ndatabase: {driver: sqlite, path: a.db}"},
		{"bad backend", "auth: {jwt_secret: x}\ndatabase: {driver: sqlite, path: a.db}\nstorage: {backend: ftp}"},
		{"bad quota", "auth: {jwt_secret: x}\ndatabase: {driver: sqlite, path: a.db}\nstorage: {default_quota: lots}"},
		{"minio without keys", "auth: {jwt_secret: x}\ndatabase: {driver: sqlite, path: a.db}\nstorage: {backend: minio}"},
		{"threshold out of range", "auth: {jwt_secret: x}\ndatabase: {driver: sqlite, path: a.db}\narchive: {quota_threshold: 1.5}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestUnlimitedDefaultQuotaAccepted(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "auth: {jwt_secret: x}\ndatabase: {driver: sqlite, path: a.db}\nstorage: {default_quota: none}"))
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Storage.DefaultQuota)
}
