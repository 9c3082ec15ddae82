package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azargarov/lazyload/workerpool"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, workerpool.DefaultWorkers, cfg.Pools.Normal.Workers)
	assert.Equal(t, workerpool.DefaultQueueCapacity, cfg.Pools.Normal.QueueCapacity)
	assert.Equal(t, workerpool.DefaultHeavyWorkers, cfg.Pools.Heavy.Workers)
	assert.Equal(t, workerpool.DefaultHeavyQueueCapacity, cfg.Pools.Heavy.QueueCapacity)
	assert.Equal(t, "priority", cfg.Pools.Normal.QueueType)
	assert.Equal(t, 100, cfg.Eviction.Capacity)
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.Nil(t, cfg.RetryPolicy())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Eviction.Capacity)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pools:
  normal:
    workers: 4
    queue_capacity: 50
    queue_type: FIFO
  heavy:
    workers: 2
eviction:
  capacity: 12
retry:
  attempts: 3
  initial: 50ms
  max: 1s
cache:
  enabled: true
  dir: /tmp/lazyload
metrics:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pools.Normal.Workers)
	assert.Equal(t, 50, cfg.Pools.Normal.QueueCapacity)
	assert.Equal(t, "fifo", cfg.Pools.Normal.QueueType)
	assert.Equal(t, 2, cfg.Pools.Heavy.Workers)
	assert.Equal(t, workerpool.DefaultHeavyQueueCapacity, cfg.Pools.Heavy.QueueCapacity)
	assert.Equal(t, 12, cfg.Eviction.Capacity)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Metrics.Enabled)

	rp := cfg.RetryPolicy()
	require.NotNil(t, rp)
	assert.Equal(t, 3, rp.Attempts)
	assert.Equal(t, 50*time.Millisecond, rp.Initial)
	assert.Equal(t, time.Second, rp.Max)

	opts, err := cfg.RegistryOptions()
	require.NoError(t, err)
	assert.Equal(t, workerpool.FifoQueue, opts.Normal.QT)
	assert.Equal(t, 4, opts.Normal.Workers)
	assert.Equal(t, workerpool.PriorityQueue, opts.Heavy.QT)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LAZYLOAD_POOLS_NORMAL_WORKERS", "7")
	t.Setenv("LAZYLOAD_EVICTION_CAPACITY", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pools.Normal.Workers)
	assert.Equal(t, 3, cfg.Eviction.Capacity)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad queue type", func(c *Config) { c.Pools.Normal.QueueType = "lifo" }, "oneof"},
		{"negative workers", func(c *Config) { c.Pools.Heavy.Workers = -1 }, "gte"},
		{"max below initial", func(c *Config) { c.Retry.Max = time.Millisecond }, "gtefield"},
		{"cache without dir", func(c *Config) { c.Cache.Enabled = true }, "required_if"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), "got %v", err)
		})
	}
}
