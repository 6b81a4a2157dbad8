package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultWorkers, cfg.Pool.Workers)
	assert.False(t, cfg.Pool.UseShared)
	assert.True(t, cfg.Dispatch.ParallelEnabled)
	assert.True(t, cfg.Dispatch.HighCompressionForcesParallel)
	assert.Equal(t, DefaultMinItemsForParallel, cfg.Dispatch.MinItemsForParallel)
	assert.Equal(t, DefaultMinBytesForParallel, cfg.Dispatch.MinBytesForParallel)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
pool:
  workers: 8
  use_shared: true
dispatch:
  min_items_for_parallel: 4
metrics:
  enabled: true
  port: 9100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pool.Workers)
	assert.True(t, cfg.Pool.UseShared)
	assert.Equal(t, 4, cfg.Dispatch.MinItemsForParallel)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)

	// Unmentioned keys keep their defaults.
	assert.Equal(t, DefaultMinBytesForParallel, cfg.Dispatch.MinBytesForParallel)
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "pool: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero workers", "pool:\n  workers: 0\n"},
		{"negative min items", "dispatch:\n  min_items_for_parallel: -1\n"},
		{"negative min bytes", "dispatch:\n  min_bytes_for_parallel: -5\n"},
		{"zero block size", "block_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSettingsSeededFromConfig(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.ParallelEnabled = false
	cfg.Dispatch.MinItemsForParallel = 3

	s := NewSettings(&cfg)
	snap := s.Snapshot()

	assert.False(t, snap.ParallelEnabled)
	assert.Equal(t, 3, snap.MinItemsForParallel)
	assert.False(t, snap.ForceParallel)
}

func TestSettingsUpdate(t *testing.T) {
	cfg := Default()
	s := NewSettings(&cfg)

	s.SetParallelEnabled(false)
	require.NoError(t, s.SetMinItemsForParallel(100))
	require.NoError(t, s.SetMinBytesForParallel(0))
	s.SetForceParallel(true)
	s.SetHighCompressionForcesParallel(false)

	snap := s.Snapshot()
	assert.False(t, snap.ParallelEnabled)
	assert.Equal(t, 100, snap.MinItemsForParallel)
	assert.Equal(t, 0, snap.MinBytesForParallel)
	assert.True(t, snap.ForceParallel)
	assert.False(t, snap.HighCompressionForcesParallel)
}

func TestSettingsRejectNegativeThresholds(t *testing.T) {
	cfg := Default()
	s := NewSettings(&cfg)

	assert.ErrorIs(t, s.SetMinItemsForParallel(-1), ErrInvalidThreshold)
	assert.ErrorIs(t, s.SetMinBytesForParallel(-1), ErrInvalidThreshold)

	// Rejected updates leave the settings untouched.
	snap := s.Snapshot()
	assert.Equal(t, DefaultMinItemsForParallel, snap.MinItemsForParallel)
	assert.Equal(t, DefaultMinBytesForParallel, snap.MinBytesForParallel)
}

func TestSnapshotIsImmutableView(t *testing.T) {
	cfg := Default()
	s := NewSettings(&cfg)

	before := s.Snapshot()
	s.SetParallelEnabled(false)

	assert.True(t, before.ParallelEnabled, "earlier snapshot unaffected by later update")
	assert.False(t, s.Snapshot().ParallelEnabled)
}

func TestSettingsConcurrentSetters(t *testing.T) {
	cfg := Default()
	s := NewSettings(&cfg)

	// Hammer independent fields from separate goroutines; every final value
	// must be the last one written for its field.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.SetParallelEnabled(i%2 == 0)
		}
		s.SetParallelEnabled(false)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.SetMinItemsForParallel(i)
		}
		_ = s.SetMinItemsForParallel(42)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.SetForceParallel(i%2 == 0)
		}
		s.SetForceParallel(true)
	}()
	wg.Wait()

	snap := s.Snapshot()
	assert.False(t, snap.ParallelEnabled)
	assert.Equal(t, 42, snap.MinItemsForParallel)
	assert.True(t, snap.ForceParallel)
}
