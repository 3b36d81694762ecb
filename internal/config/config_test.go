package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.3, cfg.Engine.ConfidenceFloor)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reqtune.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
engine:
  confidence_floor: 0.5
  cache_ttl: 1m
breaker:
  base_threshold: 20
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Engine.ConfidenceFloor)
	assert.Equal(t, time.Minute, cfg.Engine.CacheTTL)
	assert.Equal(t, 20, cfg.Breaker.BaseThreshold)
	// untouched sections keep their defaults
	assert.Equal(t, "*/15 * * * *", cfg.Trainer.Schedule)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reqtune.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REQTUNE_PORT", "7777")
	t.Setenv("REQTUNE_LOG_LEVEL", "debug")
	t.Setenv("REQTUNE_CONFIDENCE_FLOOR", "0.6")
	t.Setenv("REQTUNE_DATABASE_DSN", "postgres://localhost/reqtune")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 0.6, cfg.Engine.ConfidenceFloor)
	assert.True(t, cfg.Database.Enabled)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"confidence floor above one", func(c *Config) { c.Engine.ConfidenceFloor = 1.5 }},
		{"zero breaker threshold", func(c *Config) { c.Breaker.BaseThreshold = 0 }},
		{"sensitivity above one", func(c *Config) { c.Breaker.LoadSensitivity = 1.2 }},
		{"batch bounds inverted", func(c *Config) { c.Strategies.MaxBatch = 1; c.Strategies.MinBatch = 10 }},
		{"health weights off", func(c *Config) { c.Health.PerformanceWeight = 0.9 }},
		{"database without dsn", func(c *Config) { c.Database.Enabled = true; c.Database.DSN = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqtune.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9090, cfg.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherKeepsLastGoodConfigOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqtune.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c }, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// invalid edit never reaches the callback
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	select {
	case cfg := <-reloaded:
		t.Fatalf("unexpected reload with port %d", cfg.Server.Port)
	case <-time.After(500 * time.Millisecond):
	}
}
