// Package timer provides delayed completion and cron schedule helpers.
//
// delay is the canonical async function: its body returns at once and the
// promise is resolved later from a timer goroutine. Pending timers are
// stopped when the module is torn down.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/types"
)

var (
	// ErrNegativeDelay rejects delay calls with a negative duration.
	ErrNegativeDelay = errors.New("delay must not be negative")
	// ErrNoNextTime is returned by cron_next for expressions that never fire
	// again.
	ErrNoNextTime = errors.New("cron expression has no next time")
)

// Module implements the registry.Module interface for this package.
type Module struct {
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// Name returns the module's registered name.
func (m *Module) Name() string { return "timer" }

// Functions returns the descriptors exported by timer.
func (m *Module) Functions() []*function.Function {
	return []*function.Function{
		function.NewAsync("delay", []types.Descriptor{types.Number, types.Optional(types.Any)}, onDelay),
		function.NewSync("cron_next", []types.Descriptor{types.String, types.Optional(types.String)}, onCronNext),
	}
}

// OnDestroy stops every pending timer. Their promises are abandoned by the
// holder, not here.
func (m *Module) OnDestroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Stopping timers.", "count", len(m.timers))
	for t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	return nil
}

// Pending returns the number of timers that have not fired yet.
func (m *Module) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Module) track(t *time.Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers == nil {
		m.timers = make(map[*time.Timer]struct{})
	}
	m.timers[t] = struct{}{}
}

func (m *Module) forget(t *time.Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, t)
}

// onDelay resolves p with the optional value after the given number of
// milliseconds. Only teardown stops a pending delay.
func onDelay(_ context.Context, h *holder.Holder, args []any, p *promise.Promise) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		_ = p.Reject(err)
		return
	}

	ms := args[0].(float64)
	if ms < 0 {
		_ = p.Reject(fmt.Errorf("%w: %v", ErrNegativeDelay, ms))
		return
	}
	value := args[1]

	// ready orders the assignment of t before the callback reads it.
	ready := make(chan struct{})
	var t *time.Timer
	t = time.AfterFunc(time.Duration(ms*float64(time.Millisecond)), func() {
		<-ready
		m.forget(t)
		_ = p.Resolve(value)
	})
	m.track(t)
	close(ready)
}

// onCronNext returns the first time after from (RFC 3339, default now) that
// matches the cron expression, formatted as RFC 3339 in UTC.
func onCronNext(_ context.Context, _ *holder.Holder, args []any) (any, error) {
	expr, err := cronexpr.Parse(args[0].(string))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", args[0], err)
	}

	from := time.Now()
	if s, ok := args[1].(string); ok {
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
	}

	next := expr.Next(from)
	if next.IsZero() {
		return nil, ErrNoNextTime
	}
	return next.UTC().Format(time.RFC3339), nil
}
