package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSampleConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(4145578), cfg.Sync.StartBlock)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.InitialBackoff)
	assert.Equal(t, time.Hour, cfg.Book.JournalRetention)
	assert.Equal(t, []string{"localhost:9092"}, cfg.ChainSource.Brokers)
	assert.True(t, cfg.Sinks.NATS.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Sinks.Redis.TerminalTTL)
	require.NotNil(t, cfg.Redis)
	require.NotNil(t, cfg.OrderbookDB)
	assert.Equal(t, uint64(10), cfg.OrderbookDB.ConnectRetries)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chain_source:
  brokers: ["kafka:9092"]
  topic: logs
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "logs", cfg.ChainSource.Topic)
	assert.Equal(t, uint64(1000), cfg.Sync.BatchBlocks, "defaults survive")
	assert.Equal(t, 100, cfg.Book.DefaultLimit)
	assert.Equal(t, 10000, cfg.Notify.FanoutBacklogWarn)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain_source")

	cfg.ChainSource = ChainSourceConfig{Brokers: []string{"k:9092"}, Topic: "logs"}
	require.NoError(t, cfg.Validate())

	cfg.Sinks.Redis.Enabled = true
	cfg.FIX.Enabled = true
	cfg.Book.MaxLimit = 1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
	assert.Contains(t, err.Error(), "settings_file")
	assert.Contains(t, err.Error(), "max_limit")
}
