// Package jshost exposes the registry to JavaScript through an embedded goja
// runtime. Scripts see a global NativeModules object with one property per
// registered module and one function per exported function.
//
// Sync functions return their result directly and throw on error. Async
// functions return a JS Promise that is settled on the runtime goroutine
// once the native promise completes, wherever that happens.
//
// A Host is bound to one goja runtime and is not safe for concurrent use.
package jshost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/dispatch"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
)

// ErrUnsettled is returned by Run when the script's completion value is a
// promise that can no longer settle.
var ErrUnsettled = errors.New("script promise never settled")

// GlobalName is the name of the object scripts use to reach native modules.
const GlobalName = "NativeModules"

// Host runs scripts against the functions of a registry.
type Host struct {
	vm     *goja.Runtime
	reg    *registry.Registry
	d      *dispatch.Dispatcher
	logger *slog.Logger
	queue  *jobQueue

	// Only touched on the runtime goroutine.
	ctx     context.Context
	pending int
}

// New builds a runtime whose NativeModules object reflects the modules
// registered in reg at this point.
func New(ctx context.Context, reg *registry.Registry, d *dispatch.Dispatcher) (*Host, error) {
	h := &Host{
		vm:     goja.New(),
		reg:    reg,
		d:      d,
		logger: ctxlog.FromContext(ctx),
		queue:  newJobQueue(),
		ctx:    ctx,
	}

	if err := h.installConsole(); err != nil {
		return nil, err
	}

	modules := h.vm.NewObject()
	for _, name := range reg.Enumerate() {
		obj, err := h.moduleObject(name)
		if err != nil {
			return nil, err
		}
		if err := modules.Set(name, obj); err != nil {
			return nil, fmt.Errorf("module %q: %w", name, err)
		}
	}
	if err := h.vm.Set(GlobalName, modules); err != nil {
		return nil, err
	}

	h.logger.Debug("JS host ready.", "modules", len(reg.Enumerate()))
	return h, nil
}

func (h *Host) moduleObject(module string) (*goja.Object, error) {
	fns, _ := h.reg.Functions(module)
	infos, _ := h.reg.Describe(module)

	obj := h.vm.NewObject()
	for _, fn := range fns {
		var native func(goja.FunctionCall) goja.Value
		switch fn.Kind() {
		case function.Sync:
			native = h.syncFunc(module, fn)
		case function.Async:
			native = h.asyncFunc(module, fn)
		default:
			return nil, fmt.Errorf("%s.%s: unsupported function kind %s", module, fn.Name(), fn.Kind())
		}
		if err := obj.Set(fn.Name(), native); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", module, fn.Name(), err)
		}
	}

	if err := obj.Set("__describe", func(goja.FunctionCall) goja.Value {
		return h.vm.ToValue(describe(infos))
	}); err != nil {
		return nil, err
	}
	return obj, nil
}

func describe(infos []function.Info) []any {
	out := make([]any, len(infos))
	for i, info := range infos {
		args := make([]any, len(info.Args))
		for j, a := range info.Args {
			args[j] = a
		}
		out[i] = map[string]any{
			"name":  info.Name,
			"arity": info.Arity,
			"kind":  info.Kind.String(),
			"args":  args,
		}
	}
	return out
}

// exportArgs converts JS arguments to Go values. Trailing arguments the
// script left out are passed as nil when the declared argument is optional,
// so the dispatcher still sees the full arity.
func exportArgs(call goja.FunctionCall, fn *function.Function) []any {
	n := len(call.Arguments)
	if n < fn.Arity() {
		pad := true
		for i := n; i < fn.Arity(); i++ {
			if !types.IsOptional(fn.Arg(i)) {
				pad = false
				break
			}
		}
		if pad {
			n = fn.Arity()
		}
	}

	args := make([]any, n)
	for i := range args {
		if i < len(call.Arguments) {
			args[i] = call.Arguments[i].Export()
		}
	}
	return args
}

func (h *Host) syncFunc(module string, fn *function.Function) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		out, err := h.d.Invoke(h.ctx, dispatch.Call{
			Module:   module,
			Function: fn.Name(),
			Args:     exportArgs(call, fn),
		})
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return h.vm.ToValue(out.Value)
	}
}

func (h *Host) asyncFunc(module string, fn *function.Function) func(goja.FunctionCall) goja.Value {
	label := module + "." + fn.Name()
	return func(call goja.FunctionCall) goja.Value {
		jsPromise, resolve, reject := h.vm.NewPromise()
		p := promise.New(promise.WithLogger(h.logger), promise.WithLabel(label))

		h.pending++
		p.OnSettle(func(r promise.Result) {
			h.queue.push(func() {
				h.pending--
				if r.State == promise.Resolved {
					resolve(h.vm.ToValue(r.Value))
					return
				}
				reject(h.vm.NewGoError(r.Err))
			})
		})

		_, err := h.d.Invoke(h.ctx, dispatch.Call{
			Module:   module,
			Function: fn.Name(),
			Args:     exportArgs(call, fn),
			Promise:  p,
		})
		if err != nil {
			// Rejected before the body ran; p stays pending forever.
			h.pending--
			panic(h.vm.NewGoError(err))
		}
		return h.vm.ToValue(jsPromise)
	}
}

func (h *Host) installConsole() error {
	console := h.vm.NewObject()
	logAt := func(level slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.Export()
			}
			h.logger.Log(h.ctx, level, "console", "args", args)
			return goja.Undefined()
		}
	}
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if err := console.Set(name, logAt(level)); err != nil {
			return err
		}
	}
	return h.vm.Set("console", console)
}

// Run executes src, then settles async calls as they complete until none is
// outstanding. If the completion value of src is a promise, its outcome is
// returned. Cancelling ctx interrupts the script.
func (h *Host) Run(ctx context.Context, name, src string) (any, error) {
	logger := ctxlog.FromContext(ctx).With("script", name)
	h.ctx = ctxlog.WithLogger(ctx, logger)
	h.logger = logger

	stop := context.AfterFunc(ctx, func() { h.vm.Interrupt(ctx.Err()) })
	defer func() {
		stop()
		h.vm.ClearInterrupt()
	}()

	logger.Debug("Running script.")
	v, err := h.vm.RunScript(name, src)
	if err != nil {
		return nil, h.scriptError(ctx, name, err)
	}

	if err := h.pump(ctx); err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}

	if p, ok := v.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return exportValue(p.Result()), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("script %s: %w", name, jsError(p.Result()))
		default:
			return nil, fmt.Errorf("script %s: %w", name, ErrUnsettled)
		}
	}
	return exportValue(v), nil
}

// pump runs queued settlements on this goroutine until no async call is
// outstanding.
func (h *Host) pump(ctx context.Context) error {
	for h.pending > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.queue.ready:
		}
		for _, job := range h.queue.drain() {
			if err := h.runJob(job); err != nil {
				return err
			}
		}
	}
	return nil
}

// runJob calls job through the runtime so promise reactions it triggers run
// before it returns.
func (h *Host) runJob(job func()) error {
	call, ok := goja.AssertFunction(h.vm.ToValue(func(goja.FunctionCall) goja.Value {
		job()
		return goja.Undefined()
	}))
	if !ok {
		return errors.New("job is not callable")
	}
	_, err := call(goja.Undefined())
	return err
}

func (h *Host) scriptError(ctx context.Context, name string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) && ctx.Err() != nil {
		return fmt.Errorf("script %s interrupted: %w", name, ctx.Err())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("script %s: %w", name, jsError(ex.Value()))
	}
	return fmt.Errorf("script %s: %w", name, err)
}

// jsError recovers the Go error behind a thrown or rejected JS value.
func jsError(v goja.Value) error {
	if obj, ok := v.(*goja.Object); ok {
		if inner := obj.Get("value"); inner != nil {
			if err, ok := inner.Export().(error); ok {
				return err
			}
		}
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return errors.New("rejected without a reason")
	}
	return errors.New(v.String())
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
