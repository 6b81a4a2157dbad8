// ============================================================================
// Blockpress Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: YAML file configuration (loaded once by the CLI) and the runtime
// Settings object holding the knobs that may change while the process runs.
//
// File configuration (configs/default.yaml):
//   pool:     dedicated worker count, shared-pool selection
//   dispatch: parallel switch, HC-forces-parallel, parallelism thresholds
//   metrics:  Prometheus endpoint
//   block_size: chunk size used by the CLI when splitting input files
//
// Runtime settings:
//   The dispatch knobs are read on every batch call and may be updated
//   concurrently with in-flight batches. They live in an immutable Snapshot
//   swapped atomically under a writer lock: readers load one pointer, writers
//   copy-modify-swap. A change takes effect on the next batch call, never
//   retroactively on a running one.
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrInvalidThreshold is returned when a negative parallelism threshold is
// requested. Rejected before any state change.
var ErrInvalidThreshold = errors.New("threshold must not be negative")

// Defaults inherited from the original tuning: a small dedicated pool, and
// parallel compression for batches of more than 16 blocks whose first block
// exceeds 0.5 MiB.
const (
	DefaultWorkers             = 2
	DefaultMinItemsForParallel = 16
	DefaultMinBytesForParallel = 512 * 1024
	DefaultBlockSize           = 1024 * 1024
	DefaultMetricsPort         = 9090
)

// Config maps the YAML configuration file.
type Config struct {
	Pool struct {
		Workers   int  `yaml:"workers"`
		UseShared bool `yaml:"use_shared"`
	} `yaml:"pool"`

	Dispatch struct {
		ParallelEnabled               bool `yaml:"parallel_enabled"`
		HighCompressionForcesParallel bool `yaml:"high_compression_forces_parallel"`
		MinItemsForParallel           int  `yaml:"min_items_for_parallel"`
		MinBytesForParallel           int  `yaml:"min_bytes_for_parallel"`
	} `yaml:"dispatch"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	BlockSize int `yaml:"block_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	cfg.Pool.Workers = DefaultWorkers
	cfg.Dispatch.ParallelEnabled = true
	cfg.Dispatch.HighCompressionForcesParallel = true
	cfg.Dispatch.MinItemsForParallel = DefaultMinItemsForParallel
	cfg.Dispatch.MinBytesForParallel = DefaultMinBytesForParallel
	cfg.Metrics.Port = DefaultMetricsPort
	cfg.BlockSize = DefaultBlockSize
	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Pool.Workers < 1 {
		return nil, fmt.Errorf("pool.workers must be at least 1, got %d", cfg.Pool.Workers)
	}
	if cfg.Dispatch.MinItemsForParallel < 0 || cfg.Dispatch.MinBytesForParallel < 0 {
		return nil, ErrInvalidThreshold
	}
	if cfg.BlockSize < 1 {
		return nil, fmt.Errorf("block_size must be at least 1, got %d", cfg.BlockSize)
	}

	return &cfg, nil
}

// Snapshot is one immutable view of the runtime dispatch settings.
type Snapshot struct {
	// ParallelEnabled is the global switch for parallel execution.
	ParallelEnabled bool
	// HighCompressionForcesParallel forces the pool path for HC batches.
	HighCompressionForcesParallel bool
	// MinItemsForParallel is the batch-size threshold for parallel execution.
	MinItemsForParallel int
	// MinBytesForParallel is the first-block-size threshold for parallel
	// compression.
	MinBytesForParallel int
	// ForceParallel routes every batch through the pool regardless of the
	// heuristics. Used by the bench command.
	ForceParallel bool
}

// Settings holds the runtime dispatch settings behind an atomically swapped
// snapshot. Reads are lock-free; writers serialize on a mutex.
type Settings struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// NewSettings creates runtime settings seeded from the file config.
func NewSettings(cfg *Config) *Settings {
	s := &Settings{}
	s.snap.Store(&Snapshot{
		ParallelEnabled:               cfg.Dispatch.ParallelEnabled,
		HighCompressionForcesParallel: cfg.Dispatch.HighCompressionForcesParallel,
		MinItemsForParallel:           cfg.Dispatch.MinItemsForParallel,
		MinBytesForParallel:           cfg.Dispatch.MinBytesForParallel,
	})
	return s
}

// Snapshot returns the current settings view.
func (s *Settings) Snapshot() Snapshot {
	return *s.snap.Load()
}

// update copy-modifies the current snapshot under the writer lock. apply
// reports whether it changed anything; an unchanged snapshot is not swapped.
// Comparing inside the lock keeps concurrent check-then-set calls atomic.
func (s *Settings) update(apply func(*Snapshot) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.snap.Load()
	if !apply(&next) {
		return
	}
	s.snap.Store(&next)
}

// SetParallelEnabled toggles the global parallel switch.
func (s *Settings) SetParallelEnabled(enabled bool) {
	s.update(func(snap *Snapshot) bool {
		if snap.ParallelEnabled == enabled {
			return false
		}
		snap.ParallelEnabled = enabled
		return true
	})
}

// SetHighCompressionForcesParallel toggles forced-parallel HC batches.
func (s *Settings) SetHighCompressionForcesParallel(enabled bool) {
	s.update(func(snap *Snapshot) bool {
		if snap.HighCompressionForcesParallel == enabled {
			return false
		}
		snap.HighCompressionForcesParallel = enabled
		return true
	})
}

// SetMinItemsForParallel sets the batch-size threshold.
func (s *Settings) SetMinItemsForParallel(n int) error {
	if n < 0 {
		return ErrInvalidThreshold
	}
	s.update(func(snap *Snapshot) bool {
		if snap.MinItemsForParallel == n {
			return false
		}
		snap.MinItemsForParallel = n
		return true
	})
	return nil
}

// SetMinBytesForParallel sets the first-block-size threshold.
func (s *Settings) SetMinBytesForParallel(n int) error {
	if n < 0 {
		return ErrInvalidThreshold
	}
	s.update(func(snap *Snapshot) bool {
		if snap.MinBytesForParallel == n {
			return false
		}
		snap.MinBytesForParallel = n
		return true
	})
	return nil
}

// SetForceParallel toggles benchmark mode.
func (s *Settings) SetForceParallel(enabled bool) {
	s.update(func(snap *Snapshot) bool {
		if snap.ForceParallel == enabled {
			return false
		}
		snap.ForceParallel = enabled
		return true
	})
}
