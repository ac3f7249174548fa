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
	t.Setenv("ACCESS_SECRET", "secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, 64, cfg.Stream.Buffer)
	assert.Equal(t, 16, cfg.Push.Concurrency)
	assert.Equal(t, 12*time.Hour, cfg.Retention.Interval)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "secret")
	t.Setenv("VAPID_PUBLIC_KEY", "pub")

	dir := t.TempDir()
	yaml := `
app:
  port: ":9090"
storage:
  driver: memory
stream:
  heartbeat_interval: 5s
push:
  always: true
  concurrency: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, 5*time.Second, cfg.Stream.HeartbeatInterval)
	assert.True(t, cfg.Push.Always)
	assert.Equal(t, 4, cfg.Push.Concurrency)
	assert.Equal(t, "pub", cfg.Push.VAPIDPublicKey)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("ACCESS_SECRET", "")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadAgent(t *testing.T) {
	dir := t.TempDir()
	yaml := `
agent:
  user_id: tecnico-1
  sync_interval: 1m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadAgent(dir)
	require.NoError(t, err)
	assert.Equal(t, "tecnico-1", cfg.UserID)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.PurgeAfter)
}

func TestDSN(t *testing.T) {
	t.Parallel()

	dsn := DBConfig{Username: "u", Password: "p", Host: "db", Port: "5432", DBName: "verifiche"}.DSN()
	assert.Equal(t, "postgres://u:p@db:5432/verifiche?sslmode=disable", dsn)
}
