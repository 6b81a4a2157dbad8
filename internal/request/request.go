// ============================================================================
// Blockpress AsyncRequest - Tracked Unit of Asynchronous Work
// ============================================================================
//
// Package: internal/request
// File: request.go
// Purpose: Models one scheduled, trackable unit of work with identity,
// classification, completion state, and timing telemetry.
//
// Lifecycle (State Machine):
//   Created (createdAt set)
//      ↓ Start()
//   Started (startedAt set)
//      ↓ Complete(result) or Fail(err)
//   Completed (completedAt set, exactly one of result/error)
//
// Transition rules:
//   - Start() may run once; a second call fails with ErrAlreadyStarted
//   - Complete()/Fail() require a prior Start() (ErrNotStarted) and may run
//     once (ErrAlreadyCompleted)
//   - After completion the request is read-only
//
// Timing telemetry:
//   - ExecutionDuration = completedAt - startedAt
//   - ScheduleDelay     = startedAt - createdAt
//   - TotalTime         = completedAt - createdAt
//   Each derived accessor returns SentinelDuration (-1) until its
//   prerequisite timestamp exists. Internally the timestamps are time.Time
//   values whose zero value means "not yet set"; the -1 sentinel appears
//   only at the public accessors.
//
// Concurrency:
//   The request carries no lock of its own. The execution layer guarantees
//   each request is started and completed by exactly one execution path;
//   completion is published to waiters through the done channel.
//
// ============================================================================

package request

import (
	"errors"
	"time"

	"github.com/blockpress/blockpress/pkg/types"
)

// ============================================================================
// Error definitions
// ============================================================================

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("request already started")
	// ErrNotStarted is returned when a request is completed before Start.
	ErrNotStarted = errors.New("request not started")
	// ErrAlreadyCompleted is returned when a request is completed twice.
	ErrAlreadyCompleted = errors.New("request already completed")
)

// SentinelDuration is the contracted "not yet available" value returned by
// the derived timing accessors.
const SentinelDuration = time.Duration(-1)

// Operation is the callable captured at creation and invoked exactly once by
// the execution layer.
type Operation func() (interface{}, error)

// Request represents one tracked unit of asynchronous work.
type Request struct {
	id     types.RequestID
	kind   types.RequestKind
	target string
	op     Operation

	result interface{}
	err    error

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	// done is the completion handle, assigned when the request is scheduled
	// onto a pool and closed when it completes. Nil before scheduling.
	done chan struct{}
}

// New allocates a request. createdAt is set to now; all other timestamps and
// the result fields are unset.
func New(kind types.RequestKind, target string, op Operation) *Request {
	return &Request{
		id:        types.NewRequestID(),
		kind:      kind,
		target:    target,
		op:        op,
		createdAt: time.Now(),
	}
}

// ID returns the immutable request identifier.
func (r *Request) ID() types.RequestID { return r.id }

// Kind returns the request classification.
func (r *Request) Kind() types.RequestKind { return r.kind }

// Target returns the logical resource this request operates on. May be empty.
func (r *Request) Target() string { return r.target }

// Schedule assigns the completion handle. Called by the execution layer when
// the request is accepted for execution; a nil handle before then means the
// request was never scheduled.
func (r *Request) Schedule() {
	if r.done == nil {
		r.done = make(chan struct{})
	}
}

// Done returns the completion handle, or nil if the request has not been
// scheduled. The channel is closed when the request completes.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Start marks the beginning of execution.
func (r *Request) Start() error {
	if !r.startedAt.IsZero() {
		return ErrAlreadyStarted
	}
	r.startedAt = time.Now()
	return nil
}

// Complete marks successful completion with a result.
func (r *Request) Complete(result interface{}) error {
	if err := r.finish(); err != nil {
		return err
	}
	r.result = result
	r.publish()
	return nil
}

// Fail marks completion with an error.
func (r *Request) Fail(opErr error) error {
	if err := r.finish(); err != nil {
		return err
	}
	r.err = opErr
	r.publish()
	return nil
}

// finish validates the transition and sets completedAt.
func (r *Request) finish() error {
	if r.startedAt.IsZero() {
		return ErrNotStarted
	}
	if !r.completedAt.IsZero() {
		return ErrAlreadyCompleted
	}
	r.completedAt = time.Now()
	return nil
}

// publish closes the completion handle. Must run after the outcome fields
// are written so waiters never observe a half-completed request.
func (r *Request) publish() {
	if r.done != nil {
		close(r.done)
	}
}

// Invoke runs the captured operation.
func (r *Request) Invoke() (interface{}, error) {
	return r.op()
}

// Result returns the success value, nil until completed successfully.
func (r *Request) Result() interface{} { return r.result }

// Err returns the failure value, nil unless completed with an error.
func (r *Request) Err() error { return r.err }

// IsCompleted reports whether the request has finished executing.
func (r *Request) IsCompleted() bool {
	return !r.completedAt.IsZero()
}

// ExecutionDuration returns completedAt - startedAt, or SentinelDuration if
// the request has not completed.
func (r *Request) ExecutionDuration() time.Duration {
	if r.completedAt.IsZero() {
		return SentinelDuration
	}
	return r.completedAt.Sub(r.startedAt)
}

// ScheduleDelay returns startedAt - createdAt, or SentinelDuration if the
// request has not started.
func (r *Request) ScheduleDelay() time.Duration {
	if r.startedAt.IsZero() {
		return SentinelDuration
	}
	return r.startedAt.Sub(r.createdAt)
}

// TotalTime returns completedAt - createdAt, or SentinelDuration if the
// request has not completed.
func (r *Request) TotalTime() time.Duration {
	if r.completedAt.IsZero() {
		return SentinelDuration
	}
	return r.completedAt.Sub(r.createdAt)
}
