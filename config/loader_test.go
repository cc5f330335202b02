package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Reducer.TargetCount)
	assert.Equal(t, 5, cfg.Reducer.ThresholdCount)
	assert.False(t, cfg.Reducer.CountSystemMessage)
	assert.Equal(t, 10, cfg.Orchestration.MaximumIterations)
	assert.Equal(t, "memory", cfg.Runtime.StateStore)
	assert.Equal(t, 64, cfg.Runtime.MailboxSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reducer:
  target_count: 30
  count_system_message: true
orchestration:
  maximum_iterations: 25
runtime:
  state_store: sqlite
  sqlite_path: /var/lib/chatkernel/state.db
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Reducer.TargetCount)
	assert.Equal(t, 5, cfg.Reducer.ThresholdCount) // untouched default
	assert.True(t, cfg.Reducer.CountSystemMessage)
	assert.Equal(t, 25, cfg.Orchestration.MaximumIterations)
	assert.Equal(t, "sqlite", cfg.Runtime.StateStore)
	assert.Equal(t, "/var/lib/chatkernel/state.db", cfg.Runtime.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reducer:\n  target_count: 30\n"), 0o600))

	t.Setenv("CHATKERNEL_REDUCER_TARGET_COUNT", "40")
	t.Setenv("CHATKERNEL_RUNTIME_STATE_STORE", "redis")
	t.Setenv("CHATKERNEL_RUNTIME_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CHATKERNEL_TELEMETRY_ENABLED", "true")
	t.Setenv("CHATKERNEL_TELEMETRY_SAMPLE_RATE", "0.25")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Reducer.TargetCount)
	assert.Equal(t, "redis", cfg.Runtime.StateStore)
	assert.Equal(t, "redis.internal:6380", cfg.Runtime.Redis.Addr)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRate, 1e-9)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "warn")
	t.Setenv("CHATKERNEL_LOG_LEVEL", "error") // wrong prefix, ignored

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("CHATKERNEL_REDUCER_TARGET_COUNT", "many")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().WithConfigPath("/does/not/exist.yaml").Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Reducer.TargetCount = -1
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Orchestration.MaximumIterations = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Runtime.StateStore = "etcd"
	assert.Error(t, bad.Validate())
}
