// ============================================================================
// Blockpress Dedicated Pool - Concurrent Block Transform Executor
// ============================================================================
//
// Package: internal/pool
// File: dedicated.go
// Purpose: Fixed-size worker pool owned exclusively by this subsystem,
// applying transforms to batches of byte blocks.
//
// Design pattern:
//   Worker Pool with a shared task channel:
//   1. A fixed number of worker goroutines run for the pool's lifetime
//   2. Map() fans indexed tasks out over the task channel
//   3. Each worker writes its result into the caller's slot for that index
//   4. Map() blocks until every submitted task has finished
//
//   ┌─────────────┐
//   │ Dispatcher  │ --Map(fn, blocks)--> taskCh
//   └─────────────┘
//         ↑ results[i]
//   ┌─────────────┐
//   │  Dedicated  │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh
//   │  │Worker N│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Ordering:
//   Output order always matches input order: every task carries its input
//   index and writes only that slot. No guarantee is made about when
//   individual workers start or finish relative to each other.
//
// Concurrency control:
//   - taskCh: buffered channel, decouples submission from execution
//   - stopCh: closed by Stop(), unblocks any in-progress submission
//   - sendMu: submissions hold the read half, Stop closes taskCh under the
//     write half, so taskCh is never closed while a send is possible
//   - WaitGroup: tracks workers for graceful shutdown
//   - Mutex: protects started/stopped state
//
// Graceful shutdown:
//   Stop() closes taskCh so workers exit after their current task, then
//   waits for them with a bounded timeout. A timeout is surfaced as
//   ErrDrainTimeout so the lifecycle manager can log it and move on;
//   the leftover workers hold only a closed channel and exit on their own
//   once their current block finishes.
//
// ============================================================================

package pool

import (
	"errors"
	"sync"
	"time"
)

// ============================================================================
// Error definitions
// ============================================================================

var (
	// ErrPoolClosed is returned when work is mapped onto a stopped pool.
	ErrPoolClosed = errors.New("execution pool is closed")
	// ErrPoolNotStarted is returned when work is mapped before Start.
	ErrPoolNotStarted = errors.New("execution pool not started")
	// ErrDrainTimeout is returned when workers do not exit within the
	// drain timeout during Stop.
	ErrDrainTimeout = errors.New("execution pool drain timed out")
)

// defaultDrainTimeout bounds how long Stop waits for workers to exit.
const defaultDrainTimeout = 5 * time.Second

// task is one indexed unit of work flowing through the task channel.
type task struct {
	idx   int
	block []byte
	fn    Transform
	out   [][]byte
	errs  []error
	wg    *sync.WaitGroup
}

// Dedicated is a worker pool owned exclusively by this subsystem.
type Dedicated struct {
	size         int           // number of workers
	taskCh       chan task     // task distribution channel
	stopCh       chan struct{} // closed on Stop, unblocks submissions
	sendMu       sync.RWMutex  // held (read) across submissions; Stop closes taskCh under the write half
	wg           sync.WaitGroup
	drainTimeout time.Duration

	mu      sync.Mutex
	started bool
	stopped bool

	stopCalls int // counts Stop invocations, read by the lifecycle manager's tests
}

// NewDedicated creates a dedicated pool with the given worker count.
// The pool does not run until Start is called.
func NewDedicated(size int) *Dedicated {
	return &Dedicated{
		size:         size,
		taskCh:       make(chan task, size*2),
		stopCh:       make(chan struct{}),
		drainTimeout: defaultDrainTimeout,
	}
}

// Start launches the worker goroutines.
func (p *Dedicated) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if p.stopped {
		return ErrPoolClosed
	}

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.runWorker(id)
		}(i)
	}

	p.started = true
	return nil
}

// runWorker is the main loop of one worker: receive a task, apply the
// transform, write the result into the task's slot, signal completion.
func (p *Dedicated) runWorker(id int) {
	for t := range p.taskCh {
		res, err := t.fn(t.block)
		if err != nil {
			t.errs[t.idx] = err
		} else {
			t.out[t.idx] = res
		}
		t.wg.Done()
	}
}

// Map applies fn to every block, fanning the work out over the workers, and
// returns the results in input order. The calling goroutine blocks until all
// submitted items complete. If any transform fails, the first error by input
// index is returned and the remaining results are discarded; in-flight work
// is not cancelled.
func (p *Dedicated) Map(fn Transform, blocks [][]byte) ([][]byte, error) {
	if len(blocks) == 0 {
		return [][]byte{}, nil
	}

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil, ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	taskCh := p.taskCh
	stopCh := p.stopCh
	p.mu.Unlock()

	out := make([][]byte, len(blocks))
	errs := make([]error, len(blocks))
	var wg sync.WaitGroup

	// Hold the send lock across the submission loop: Stop closes taskCh only
	// under the write half, so a send can never hit a closed channel. A Stop
	// arriving mid-batch closes stopCh first, which unblocks the send below
	// and takes the abort path.
	p.sendMu.RLock()

	// Stop may have fully completed between the state check above and taking
	// the send lock; taskCh cannot change state while the lock is held, so
	// this check is decisive.
	select {
	case <-stopCh:
		p.sendMu.RUnlock()
		return nil, ErrPoolClosed
	default:
	}

	aborted := false
	for i, block := range blocks {
		wg.Add(1)
		select {
		case taskCh <- task{idx: i, block: block, fn: fn, out: out, errs: errs, wg: &wg}:
		case <-stopCh:
			// Pool stopped mid-batch. Drop the unsent task, wait for the
			// ones already submitted, and report the closure.
			wg.Done()
			aborted = true
		}
		if aborted {
			break
		}
	}
	p.sendMu.RUnlock()

	wg.Wait()

	if aborted {
		return nil, ErrPoolClosed
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Stop gracefully shuts the pool down: no new tasks are accepted, workers
// exit after finishing their current task. Waits up to the drain timeout and
// returns ErrDrainTimeout if the workers have not exited by then.
func (p *Dedicated) Stop() error {
	p.mu.Lock()
	p.stopCalls++
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	// stopCh first: it unblocks any submission stuck on a full taskCh, and
	// the send lock then guarantees no submission is in flight when taskCh
	// closes.
	close(p.stopCh)
	p.sendMu.Lock()
	close(p.taskCh)
	p.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.drainTimeout):
		return ErrDrainTimeout
	}
}

// WorkerCount returns the number of workers the pool was created with.
func (p *Dedicated) WorkerCount() int {
	return p.size
}

// IsStopped reports whether Stop has been called.
func (p *Dedicated) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
