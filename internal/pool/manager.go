// ============================================================================
// Blockpress Pool Lifecycle Manager
// ============================================================================
//
// Package: internal/pool
// File: manager.go
// Purpose: Owns the single active execution backend and mediates transitions
// between a dedicated worker pool and a shared, externally owned pool.
//
// Backend variants:
//   - Dedicated: workers owned exclusively by this subsystem, sized by
//     configuration, created lazily on first use
//   - Shared: a borrowed worker set owned elsewhere; never closed here
//
// Transition model (stop-the-world for the dedicated pool):
//   Execute() holds the read half of the transition lock for the whole Map
//   call. SetUseSharedPool()/Resize() take the write half, so they wait for
//   every in-flight batch, drain the old dedicated backend, and install the
//   replacement before any new batch can observe the manager. No caller ever
//   sees a half-migrated state or a manager without an active backend.
//
// Drain failures:
//   A drain timeout is logged at warning level and the transition proceeds
//   regardless: availability of compression takes priority over guaranteed
//   graceful shutdown of the old backend. The stragglers hold only a closed
//   task channel and exit once their current block finishes.
//
// ============================================================================

package pool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/blockpress/blockpress/internal/metrics"
)

// ============================================================================
// Error definitions
// ============================================================================

var (
	// ErrInvalidPoolSize is returned when a dedicated pool size below 1 is
	// requested. Rejected before any state change.
	ErrInvalidPoolSize = errors.New("pool size must be at least 1")
	// ErrSharedPoolResize is returned when Resize is called in shared mode;
	// size is not meaningful for a borrowed pool.
	ErrSharedPoolResize = errors.New("cannot resize the shared pool")
	// ErrNoSharedPool is returned when shared mode is requested but no
	// shared worker set was configured.
	ErrNoSharedPool = errors.New("no shared pool configured")
)

// Options configures a Manager.
type Options struct {
	// Size is the dedicated pool's worker count. Must be >= 1.
	Size int
	// UseShared selects the shared backend from the start.
	UseShared bool
	// Shared is the externally owned worker set borrowed in shared mode.
	Shared WorkerSet
	// Metrics receives pool gauges and transition counts. Optional.
	Metrics *metrics.Collector
}

// Manager owns the currently active execution backend.
type Manager struct {
	mu        sync.RWMutex
	size      int
	useShared bool
	dedicated *Dedicated // nil until first dedicated-mode use
	shared    WorkerSet
	metrics   *metrics.Collector
	log       *slog.Logger
}

// NewManager creates a lifecycle manager. The dedicated backend is not built
// until the first Execute call in dedicated mode.
func NewManager(opts Options) (*Manager, error) {
	if opts.Size < 1 {
		return nil, ErrInvalidPoolSize
	}
	if opts.UseShared && opts.Shared == nil {
		return nil, ErrNoSharedPool
	}
	m := &Manager{
		size:      opts.Size,
		useShared: opts.UseShared,
		shared:    opts.Shared,
		metrics:   opts.Metrics,
		log:       slog.With("component", "pool"),
	}
	m.recordState()
	return m, nil
}

// Execute maps fn over blocks using the active backend. The read half of the
// transition lock is held for the whole call, so transitions wait for
// in-flight batches and batches never observe a transition in progress.
func (m *Manager) Execute(fn Transform, blocks [][]byte) ([][]byte, error) {
	m.mu.RLock()
	if !m.useShared && m.dedicated == nil {
		// First dedicated-mode use: upgrade to the write lock to build the
		// default backend, then re-acquire the read lock for execution.
		m.mu.RUnlock()
		if err := m.initDedicated(); err != nil {
			return nil, err
		}
		m.mu.RLock()
	}
	defer m.mu.RUnlock()

	if m.useShared {
		return m.shared.Map(fn, blocks)
	}
	return m.dedicated.Map(fn, blocks)
}

// initDedicated lazily constructs and starts the default dedicated backend.
func (m *Manager) initDedicated() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.useShared || m.dedicated != nil {
		// Another caller or a transition got here first.
		return nil
	}
	p := NewDedicated(m.size)
	if err := p.Start(); err != nil {
		return err
	}
	m.log.Info("dedicated pool started", "workers", m.size)
	m.dedicated = p
	m.recordStateLocked()
	return nil
}

// SetUseSharedPool switches between the dedicated and shared backends.
// A no-op when already in the requested mode. Switching away from the
// dedicated backend drains it first; already-submitted work finishes
// undisturbed, and a drain failure is logged but does not block the switch.
func (m *Manager) SetUseSharedPool(useShared bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.useShared == useShared {
		return nil
	}
	if useShared && m.shared == nil {
		return ErrNoSharedPool
	}

	m.drainDedicatedLocked()
	m.useShared = useShared
	if !useShared {
		p := NewDedicated(m.size)
		if err := p.Start(); err != nil {
			return err
		}
		m.dedicated = p
	}

	m.log.Info("pool mode switched", "shared", useShared)
	m.recordTransitionLocked()
	return nil
}

// Resize drains and replaces the dedicated backend with one of the new size.
// Fails with ErrInvalidPoolSize for sizes below 1 and ErrSharedPoolResize in
// shared mode; a no-op when the size is unchanged.
func (m *Manager) Resize(newSize int) error {
	if newSize < 1 {
		return ErrInvalidPoolSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.useShared {
		return ErrSharedPoolResize
	}
	if newSize == m.size {
		return nil
	}

	m.drainDedicatedLocked()
	m.size = newSize
	if m.dedicated != nil {
		p := NewDedicated(newSize)
		if err := p.Start(); err != nil {
			return err
		}
		m.dedicated = p
	}

	m.log.Info("dedicated pool resized", "workers", newSize)
	m.recordTransitionLocked()
	return nil
}

// Shutdown drains the dedicated backend, if any. The shared backend belongs
// to its owner and is left untouched.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainDedicatedLocked()
}

// drainDedicatedLocked retires the current dedicated backend. Must be called
// with the write lock held. Drain failures are surfaced as warnings only.
func (m *Manager) drainDedicatedLocked() {
	if m.dedicated == nil {
		return
	}
	if err := m.dedicated.Stop(); err != nil {
		m.log.Warn("failed to drain dedicated pool, proceeding", "error", err)
	}
	m.dedicated = nil
}

// Current returns the active backend, building the default dedicated pool on
// first use. The returned pool may be retired by a later transition; callers
// that need transition-safe execution should go through Execute.
func (m *Manager) Current() (ExecutionPool, error) {
	m.mu.RLock()
	if !m.useShared && m.dedicated == nil {
		m.mu.RUnlock()
		if err := m.initDedicated(); err != nil {
			return nil, err
		}
		m.mu.RLock()
	}
	defer m.mu.RUnlock()

	if m.useShared {
		return m.shared, nil
	}
	return m.dedicated, nil
}

// UsingShared reports whether the shared backend is active.
func (m *Manager) UsingShared() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.useShared
}

// WorkerCount returns the configured dedicated pool size. In shared mode the
// size of the borrowed pool is unknown here and 0 is returned.
func (m *Manager) WorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.useShared {
		return 0
	}
	return m.size
}

func (m *Manager) recordState() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.recordStateLocked()
}

func (m *Manager) recordStateLocked() {
	if m.metrics == nil {
		return
	}
	workers := m.size
	if m.useShared {
		workers = 0
	}
	m.metrics.SetPoolState(workers, m.useShared)
}

func (m *Manager) recordTransitionLocked() {
	if m.metrics != nil {
		m.metrics.RecordPoolTransition()
	}
	m.recordStateLocked()
}
