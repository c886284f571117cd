// Package dispatch performs type-checked invocation of registered native
// functions: lookup, holder resolution, arity and argument validation, then
// a call through the function's sync or async protocol.
//
// Every dispatch-level failure is detected before the body runs. Errors
// returned by a sync body, or passed to Reject by an async one, reach the
// caller unchanged.
package dispatch

import (
	"context"
	"fmt"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
)

// Call names a function and carries the raw arguments of one invocation.
type Call struct {
	Module   string
	Function string
	// Holder targets a specific module instance. When nil the module's
	// registered holder is used.
	Holder *holder.Holder
	Args   []any
	// Promise receives the outcome of an async function. When nil a fresh
	// promise is created.
	Promise *promise.Promise
}

// Outcome is the immediate result of Invoke. Value is set for sync
// functions; Promise is set for async ones and settles later.
type Outcome struct {
	Value   any
	Promise *promise.Promise
}

// Dispatcher invokes functions registered in a Registry. It holds no
// per-call state and is safe for concurrent use.
type Dispatcher struct {
	reg *registry.Registry
}

// New creates a dispatcher over reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Invoke validates c and calls the function's body. A sync body's error is
// returned verbatim. For an async function Invoke returns as soon as the body
// has been issued; the result arrives through Outcome.Promise.
func (d *Dispatcher) Invoke(ctx context.Context, c Call) (Outcome, error) {
	ctx = ctxlog.With(ctx, "module", c.Module, "function", c.Function)
	logger := ctxlog.FromContext(ctx)

	fn, ok := d.reg.Lookup(c.Module, c.Function)
	if !ok {
		err := d.notFound(c.Module, c.Function)
		logger.Debug("Function lookup failed.", "error", err)
		return Outcome{}, err
	}

	h, err := d.resolveHolder(c)
	if err != nil {
		return Outcome{}, err
	}

	args, err := convertArgs(c, fn)
	if err != nil {
		logger.Debug("Argument validation failed.", "error", err)
		return Outcome{}, err
	}

	switch fn.Kind() {
	case function.Sync:
		logger.Debug("Calling sync function.")
		v, err := callSync(ctx, c, fn.SyncBody(), h, args)
		return Outcome{Value: v}, err
	case function.Async:
		p := c.Promise
		if p == nil {
			p = promise.New(promise.WithLogger(logger), promise.WithLabel(c.Module+"."+c.Function))
		}
		h.Track(p)
		logger.Debug("Calling async function.")
		// An issued call is only ended by its body or by teardown, never by
		// the caller's ctx. Values such as the logger are kept.
		callAsync(context.WithoutCancel(ctx), c, fn.AsyncBody(), h, args, p)
		return Outcome{Promise: p}, nil
	default:
		return Outcome{}, fmt.Errorf("%s.%s: unsupported function kind %s", c.Module, c.Function, fn.Kind())
	}
}

func (d *Dispatcher) resolveHolder(c Call) (*holder.Holder, error) {
	h := c.Holder
	if h == nil {
		registered, ok := d.reg.Holder(c.Module)
		if !ok {
			return nil, d.notFound(c.Module, c.Function)
		}
		h = registered
	} else if h.Module() != c.Module {
		return nil, fmt.Errorf("%s.%s: holder %s: %w", c.Module, c.Function, h, ErrHolderMismatch)
	}
	if !h.Alive() {
		return nil, fmt.Errorf("%s.%s: %w", c.Module, c.Function, ErrModuleUnavailable)
	}
	return h, nil
}

// convertArgs checks arity and converts arguments in declaration order,
// stopping at the first failure. A descriptor that panics fails its own
// position.
func convertArgs(c Call, fn *function.Function) ([]any, error) {
	if len(c.Args) != fn.Arity() {
		return nil, &ArityError{Module: c.Module, Function: c.Function, Want: fn.Arity(), Got: len(c.Args)}
	}
	out := make([]any, len(c.Args))
	for i, raw := range c.Args {
		v, err := convertArg(fn.Arg(i), raw)
		if err != nil {
			return nil, &ArgumentError{Module: c.Module, Function: c.Function, Position: i, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

func convertArg(d types.Descriptor, raw any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &types.MismatchError{
				Expected: d.FriendlyName(),
				Actual:   types.ShapeOf(raw),
				Err:      fmt.Errorf("conversion panicked: %v", r),
			}
		}
	}()
	return d.Convert(raw)
}

func callSync(ctx context.Context, c Call, body function.SyncBody, h *holder.Holder, args []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Sync function panicked.", "panic", r)
			v, err = nil, &PanicError{Module: c.Module, Function: c.Function, Value: r}
		}
	}()
	return body(ctx, h, args)
}

func callAsync(ctx context.Context, c Call, body function.AsyncBody, h *holder.Holder, args []any, p *promise.Promise) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Async function panicked.", "panic", r)
			// A body that settled before panicking keeps its outcome.
			_ = p.Reject(&PanicError{Module: c.Module, Function: c.Function, Value: r})
		}
	}()
	body(ctx, h, args, p)
}

// Call invokes module.fn with args and, for async functions, waits for the
// promise to settle or ctx to end.
func (d *Dispatcher) Call(ctx context.Context, module, fn string, args ...any) (any, error) {
	out, err := d.Invoke(ctx, Call{Module: module, Function: fn, Args: args})
	if err != nil {
		return nil, err
	}
	if out.Promise == nil {
		return out.Value, nil
	}
	return out.Promise.Await(ctx)
}
