package thinrsbus_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunetmoducoding/thinrsbus-go/pkg/thinrsbus"
)

func TestUnit_Config_AppliesDefaultsForZeroValues(t *testing.T) {
	cfg := thinrsbus.Config{Namespace: "test"}

	resolved := cfg.WithDefaults()

	// Receiver defaults
	assert.Equal(t, int64(86400000), resolved.Receiver.WatchTimeoutMs)
	assert.Equal(t, int64(16), resolved.Receiver.Workers)
	assert.Equal(t, "0", resolved.Receiver.StartID)
	assert.Equal(t, int64(30000), resolved.Receiver.ShutdownTimeoutMs)
	assert.Equal(t, thinrsbus.RemoveDelivered, resolved.Receiver.Removal)
	assert.Equal(t, "receiver", resolved.Receiver.NamePrefix)

	// Supervisor defaults
	assert.Equal(t, int64(1000), resolved.Supervisor.BaseDelayMs)
	assert.Equal(t, int64(60000), resolved.Supervisor.MaxDelayMs)

	// Redis defaults
	assert.Equal(t, "localhost:6379", resolved.Redis.Address)
	assert.Equal(t, 10, resolved.Redis.PoolSize)

	assert.NoError(t, resolved.Validate())
}

func TestUnit_Config_ValidationRequiresNamespace(t *testing.T) {
	err := thinrsbus.DefaultConfig().Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestUnit_Config_ValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *thinrsbus.Config)
		want   string
	}{
		{"watch timeout", func(c *thinrsbus.Config) { c.Receiver.WatchTimeoutMs = -1 }, "watch_timeout"},
		{"workers", func(c *thinrsbus.Config) { c.Receiver.Workers = 0 }, "workers"},
		{"removal", func(c *thinrsbus.Config) { c.Receiver.Removal = "sometimes" }, "removal"},
		{"start id", func(c *thinrsbus.Config) { c.Receiver.StartID = "abc" }, "start_id"},
		{"base delay", func(c *thinrsbus.Config) { c.Supervisor.BaseDelayMs = 0 }, "base_delay"},
		{"max delay", func(c *thinrsbus.Config) { c.Supervisor.MaxDelayMs = 10 }, "max_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := thinrsbus.DefaultConfig()
			cfg.Namespace = "test"
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUnit_Config_ValidationAcceptsLatestStart(t *testing.T) {
	cfg := thinrsbus.DefaultConfig()
	cfg.Namespace = "test"
	cfg.Receiver.StartID = "$"

	assert.NoError(t, cfg.Validate())
}

func TestUnit_Config_FromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_USE_TLS", "1")

	cfg := thinrsbus.ConfigFromEnv()

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Address)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.True(t, cfg.Redis.UseTLS)
	assert.Empty(t, cfg.Namespace)
}

func TestUnit_Config_LoadFromYAML(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")

	path := filepath.Join(t.TempDir(), "bus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
namespace: billing
redis:
  address: redis:6379
receiver:
  workers: 2
  start_id: "$"
  removal: never
supervisor:
  jitter: false
`), 0o600))

	cfg, err := thinrsbus.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "billing", cfg.Namespace)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, int64(2), cfg.Receiver.Workers)
	assert.Equal(t, "$", cfg.Receiver.StartID)
	assert.Equal(t, thinrsbus.RemoveNever, cfg.Receiver.Removal)
	assert.False(t, cfg.Supervisor.Jitter)
	// untouched keys keep their defaults
	assert.Equal(t, int64(30000), cfg.Receiver.ShutdownTimeoutMs)
	assert.NoError(t, cfg.Validate())
}

func TestUnit_Config_LoadEnvOverridesYAMLAddress(t *testing.T) {
	t.Setenv("REDIS_HOST", "override")
	t.Setenv("REDIS_PORT", "")

	path := filepath.Join(t.TempDir(), "bus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespace: x\nredis:\n  address: redis:6379\n"), 0o600))

	cfg, err := thinrsbus.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "override:6379", cfg.Redis.Address)
}

func TestUnit_Config_LoadErrors(t *testing.T) {
	_, err := thinrsbus.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("receiver: [1, 2"), 0o600))
	_, err = thinrsbus.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestUnit_StreamKey(t *testing.T) {
	assert.Equal(t, "myapp:orders", thinrsbus.StreamKey("myapp", "orders"))
}
