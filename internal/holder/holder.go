// Package holder wraps a live module instance so it can be passed,
// explicitly, into every function body that module exports.
package holder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vk/nativebridge/internal/promise"
)

// ErrTornDown is the default reason given to promises abandoned by Teardown.
var ErrTornDown = errors.New("module instance torn down")

// Holder owns a module instance for the instance's whole lifetime. Each
// Holder carries a unique identity token so callers can target a specific
// instance when a module is instantiated more than once.
type Holder struct {
	id       uuid.UUID
	module   string
	instance any
	torn     atomic.Bool

	mu      sync.Mutex
	pending map[*promise.Promise]struct{}
}

// New creates a holder for instance, owned by the module called name.
func New(module string, instance any) *Holder {
	return &Holder{
		id:       uuid.Must(uuid.NewV7()),
		module:   module,
		instance: instance,
		pending:  make(map[*promise.Promise]struct{}),
	}
}

// ID returns the instance's identity token.
func (h *Holder) ID() uuid.UUID { return h.id }

// Module returns the owning module's name.
func (h *Holder) Module() string { return h.module }

// Instance returns the live module instance.
func (h *Holder) Instance() any { return h.instance }

// Alive reports whether the instance has not been torn down.
func (h *Holder) Alive() bool { return !h.torn.Load() }

func (h *Holder) String() string {
	return fmt.Sprintf("%s#%s", h.module, h.id)
}

// InstanceOf returns the holder's instance as a T.
func InstanceOf[T any](h *Holder) (T, error) {
	var zero T
	if h == nil {
		return zero, errors.New("nil module holder")
	}
	v, ok := h.instance.(T)
	if !ok {
		return zero, fmt.Errorf("module %q holds a %T, not a %T", h.module, h.instance, zero)
	}
	return v, nil
}

// Track records p as outstanding work of this instance until it settles.
// Promises tracked after teardown are abandoned immediately.
func (h *Holder) Track(p *promise.Promise) {
	h.mu.Lock()
	if h.torn.Load() {
		h.mu.Unlock()
		p.Abandon(fmt.Errorf("%s: %w", h.module, ErrTornDown))
		return
	}
	h.pending[p] = struct{}{}
	h.mu.Unlock()

	p.OnSettle(func(promise.Result) {
		h.mu.Lock()
		delete(h.pending, p)
		h.mu.Unlock()
	})
}

// Pending returns the number of tracked promises that have not settled.
func (h *Holder) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Teardown marks the instance unusable and rejects every promise it still
// tracks with reason (ErrTornDown when nil). It reports whether this call
// performed the teardown.
func (h *Holder) Teardown(reason error) bool {
	if reason == nil {
		reason = ErrTornDown
	}

	h.mu.Lock()
	if !h.torn.CompareAndSwap(false, true) {
		h.mu.Unlock()
		return false
	}
	pending := make([]*promise.Promise, 0, len(h.pending))
	for p := range h.pending {
		pending = append(pending, p)
	}
	h.mu.Unlock()

	for _, p := range pending {
		p.Abandon(reason)
	}
	return true
}
