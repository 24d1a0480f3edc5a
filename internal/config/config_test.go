package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 120, cfg.Outbox.LockSeconds)
	assert.Equal(t, 10, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.ClickHouse.DSN)
}

func TestOutboxNormalizeClampsRanges(t *testing.T) {
	c := OutboxConfig{BatchSize: 5000, LockSeconds: 1, MaxAttempts: 0}
	c.Normalize()

	assert.Equal(t, 100, c.BatchSize)
	assert.Equal(t, 120, c.LockSeconds)
	assert.Equal(t, 10, c.MaxAttempts)
	assert.Equal(t, 5*time.Second, c.PollInterval)
	assert.Equal(t, time.Minute, c.SweepInterval)
}

func TestOutboxNormalizeKeepsValidValues(t *testing.T) {
	c := OutboxConfig{BatchSize: 250, LockSeconds: 60, MaxAttempts: 3, PollInterval: time.Second, SweepInterval: 30 * time.Second}
	c.Normalize()

	assert.Equal(t, 250, c.BatchSize)
	assert.Equal(t, 60, c.LockSeconds)
	assert.Equal(t, 3, c.MaxAttempts)
}
