// ============================================================================
// Blockpress Shared Async Pool
// ============================================================================
//
// Package: internal/async
// File: pool.go
// Purpose: The process-wide shared task pool. Other subsystems submit
// AsyncRequests to it; the compression layer borrows it as an execution
// backend through its Map capability when configured for shared mode.
//
// Ownership:
//   This package owns the pool's lifecycle. Borrowers (the pool lifecycle
//   manager) must never stop it; Stop is called by whoever started the pool,
//   normally at process shutdown.
//
// Request handling:
//   Submit schedules a request (assigning its completion handle) and hands
//   it to a worker. The worker marks it started, invokes the captured
//   operation exactly once, and completes it with the result or error.
//   Callers observe completion through the request's Done channel.
//
// ============================================================================

package async

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/blockpress/blockpress/internal/pool"
	"github.com/blockpress/blockpress/internal/request"
	"github.com/blockpress/blockpress/pkg/types"
)

// ============================================================================
// Error definitions
// ============================================================================

var (
	// ErrClosed is returned when work is submitted to a stopped pool.
	ErrClosed = errors.New("shared pool is closed")
	// ErrNotStarted is returned when work is submitted before Start.
	ErrNotStarted = errors.New("shared pool not started")
)

// Pool is the shared worker set.
type Pool struct {
	size   int
	taskCh chan *request.Request
	stopCh chan struct{}
	wg     sync.WaitGroup
	log    *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool creates a shared pool with the given worker count.
func NewPool(size int) *Pool {
	return &Pool{
		size:   size,
		taskCh: make(chan *request.Request, size*2),
		stopCh: make(chan struct{}),
		log:    slog.With("component", "async"),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if p.stopped {
		return ErrClosed
	}

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker()
		}()
	}

	p.started = true
	p.log.Info("shared pool started", "workers", p.size)
	return nil
}

func (p *Pool) runWorker() {
	for req := range p.taskCh {
		// The worker is the request's only execution path.
		_ = req.Start()
		res, err := req.Invoke()
		if err != nil {
			_ = req.Fail(err)
		} else {
			_ = req.Complete(res)
		}
	}
}

// Submit schedules a request for execution. Completion is observed through
// the request's Done channel.
func (p *Pool) Submit(req *request.Request) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrClosed
	}
	taskCh := p.taskCh
	stopCh := p.stopCh
	p.mu.Unlock()

	req.Schedule()
	select {
	case taskCh <- req:
		return nil
	case <-stopCh:
		return ErrClosed
	}
}

// Map applies fn to every block using the shared workers and returns the
// results in input order, satisfying the execution-layer WorkerSet contract.
// Blocks until every submitted item completes; the first transform error by
// input index fails the call and the remaining results are discarded.
func (p *Pool) Map(fn pool.Transform, blocks [][]byte) ([][]byte, error) {
	if len(blocks) == 0 {
		return [][]byte{}, nil
	}

	reqs := make([]*request.Request, len(blocks))
	for i, block := range blocks {
		block := block
		req := request.New(types.KindAccessor, "", func() (interface{}, error) {
			return fn(block)
		})
		if err := p.Submit(req); err != nil {
			// Wait for what was already submitted before reporting.
			for _, r := range reqs[:i] {
				<-r.Done()
			}
			return nil, err
		}
		reqs[i] = req
	}

	for _, req := range reqs {
		<-req.Done()
	}

	out := make([][]byte, len(blocks))
	for i, req := range reqs {
		if err := req.Err(); err != nil {
			return nil, err
		}
		out[i] = req.Result().([]byte)
	}
	return out, nil
}

// Stop gracefully shuts the pool down, waiting for in-flight requests.
// Only the pool's owner may call it.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	close(p.taskCh)
	p.wg.Wait()
	p.log.Info("shared pool stopped")
}

// WorkerCount returns the pool's worker count.
func (p *Pool) WorkerCount() int {
	return p.size
}

// ============================================================================
// Process-wide default pool
// ============================================================================

var (
	defaultPool *Pool
	defaultOnce sync.Once
)

// Default returns the process-wide shared pool, starting it on first use
// with one worker per CPU.
func Default() *Pool {
	defaultOnce.Do(func() {
		defaultPool = NewPool(runtime.NumCPU())
		if err := defaultPool.Start(); err != nil {
			panic(err) // unreachable: the pool is fresh
		}
	})
	return defaultPool
}
