// Package promise implements the one-shot completion sink handed to
// asynchronous native functions.
//
// A Promise starts Pending and moves exactly once to Resolved or Rejected.
// The transition is guarded by an atomic compare-and-swap, so it may be
// settled from any goroutine, long after the call that created it returned.
// Later attempts to settle are reported as misuse and never change the
// outcome the caller observes.
package promise

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Promise.
type State int32

const (
	Pending State = iota
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadySettled is returned by Resolve and Reject after the first
	// settlement.
	ErrAlreadySettled = errors.New("promise already settled")

	// ErrNilReason replaces a nil error passed to Reject.
	ErrNilReason = errors.New("promise rejected with nil reason")
)

// Result is the delivered outcome of a settled Promise.
type Result struct {
	State State
	Value any
	Err   error
}

// Promise is a single-fire resolve/reject channel. The zero value is not
// usable; create one with New.
type Promise struct {
	state     atomic.Int32
	settling  atomic.Bool
	abandoned atomic.Bool
	done      chan struct{}
	logger    *slog.Logger
	label     string

	// value and err are written once before done is closed.
	value any
	err   error

	mu        sync.Mutex
	callbacks []func(Result)
}

// Option configures a Promise.
type Option func(*Promise)

// WithLogger sets the logger used to report double completion.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Promise) { p.logger = logger }
}

// WithLabel names the promise in log output, typically "module.function".
func WithLabel(label string) Option {
	return func(p *Promise) { p.label = label }
}

// New creates a pending promise.
func New(opts ...Option) *Promise {
	p := &Promise{done: make(chan struct{}), logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve settles the promise with a value.
func (p *Promise) Resolve(value any) error {
	return p.settle(Resolved, value, nil, "resolve")
}

// Reject settles the promise with an error.
func (p *Promise) Reject(err error) error {
	if err == nil {
		err = ErrNilReason
	}
	return p.settle(Rejected, nil, err, "reject")
}

// Abandon rejects a still-pending promise with reason and marks it
// abandoned. Settlement attempts that arrive afterwards are dropped quietly
// instead of being reported as double completion. It reports whether the
// promise was still pending.
func (p *Promise) Abandon(reason error) bool {
	if reason == nil {
		reason = ErrNilReason
	}
	if !p.settling.CompareAndSwap(false, true) {
		return false
	}
	p.abandoned.Store(true)
	p.publish(Rejected, nil, reason)
	return true
}

func (p *Promise) settle(state State, value any, err error, op string) error {
	if !p.settling.CompareAndSwap(false, true) {
		if p.abandoned.Load() {
			p.logger.Debug("Dropped completion of abandoned promise.", "promise", p.label, "op", op)
		} else {
			p.logger.Warn("Promise settled more than once; ignoring.", "promise", p.label, "op", op, "state", p.State().String())
		}
		return ErrAlreadySettled
	}
	p.publish(state, value, err)
	return nil
}

func (p *Promise) publish(state State, value any, err error) {
	p.value = value
	p.err = err
	p.state.Store(int32(state))
	close(p.done)

	p.mu.Lock()
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	res := p.Result()
	for _, cb := range callbacks {
		cb(res)
	}
}

// State returns the current state.
func (p *Promise) State() State {
	return State(p.state.Load())
}

// Abandoned reports whether the promise was settled by Abandon.
func (p *Promise) Abandoned() bool {
	return p.abandoned.Load()
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome. It is only meaningful after Done is closed;
// before that it reports Pending.
func (p *Promise) Result() Result {
	select {
	case <-p.done:
		return Result{State: p.State(), Value: p.value, Err: p.err}
	default:
		return Result{State: Pending}
	}
}

// Await blocks until the promise settles or ctx is done.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnSettle registers fn to run exactly once with the outcome. If the promise
// has already settled, fn runs immediately on the calling goroutine;
// otherwise it runs on the goroutine that settles the promise.
func (p *Promise) OnSettle(fn func(Result)) {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		fn(p.Result())
		return
	default:
	}
	p.callbacks = append(p.callbacks, fn)
	p.mu.Unlock()
}
