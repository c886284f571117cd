package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
)

var (
	// ErrDuplicate is returned when a module or function name is registered twice.
	ErrDuplicate = errors.New("already registered")
	// ErrSealed is returned by registration after Seal, unless late
	// registration was enabled.
	ErrSealed = errors.New("registry is sealed")
	// ErrUnknownModule is returned by lifecycle operations on a name that was
	// never registered.
	ErrUnknownModule = errors.New("unknown module")
)

// Module is the interface all native modules implement to be registered.
type Module interface {
	Name() string
	Functions() []*function.Function
}

// Creator is implemented by modules that need setup once registered.
type Creator interface {
	OnCreate(ctx context.Context, r *Registry) error
}

// Destroyer is implemented by modules that hold resources to release on
// teardown.
type Destroyer interface {
	OnDestroy(ctx context.Context) error
}

// Package groups modules that are registered together.
type Package interface {
	Modules() []Module
}

type entry struct {
	name   string
	module Module
	fns    []*function.Function
	byName map[string]*function.Function
	holder *holder.Holder
}

// Registry maps module names to their function descriptors and live holders.
type Registry struct {
	logger *slog.Logger
	late   bool

	mu      sync.RWMutex
	sealed  bool
	modules map[string]*entry
	order   []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLateRegistration keeps the registry open for registration after Seal.
func WithLateRegistration() Option {
	return func(r *Registry) { r.late = true }
}

// WithLogger sets the logger used for registration events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates and initializes a new Registry instance.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		modules: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a module with no instance state under name. It is the
// minimal form of RegisterModule for plain function sets.
func (r *Registry) Register(name string, fns ...*function.Function) error {
	_, err := r.add(name, nil, fns)
	return err
}

// RegisterModule registers m's functions, creates its holder and runs its
// OnCreate hook. A failing hook leaves the registry unchanged.
func (r *Registry) RegisterModule(ctx context.Context, m Module) error {
	e, err := r.add(m.Name(), m, m.Functions())
	if err != nil {
		return err
	}

	c, ok := m.(Creator)
	if !ok {
		return nil
	}
	if err := c.OnCreate(ctx, r); err != nil {
		r.remove(e)
		e.holder.Teardown(fmt.Errorf("module %q: %w", e.name, holder.ErrTornDown))
		return fmt.Errorf("module %q: create: %w", e.name, err)
	}
	ctxlog.FromContext(ctx).Debug("Module created.", "module", e.name, "instance", e.holder.ID())
	return nil
}

// RegisterPackage registers every module of p in order, stopping at the
// first failure.
func (r *Registry) RegisterPackage(ctx context.Context, p Package) error {
	for _, m := range p.Modules() {
		if err := r.RegisterModule(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(name string, m Module, fns []*function.Function) (*entry, error) {
	if name == "" {
		return nil, errors.New("module name must not be empty")
	}

	e := &entry{
		name:   name,
		module: m,
		fns:    make([]*function.Function, 0, len(fns)),
		byName: make(map[string]*function.Function, len(fns)),
	}
	for i, fn := range fns {
		if fn == nil {
			return nil, fmt.Errorf("module %q: function %d is nil", name, i)
		}
		if _, exists := e.byName[fn.Name()]; exists {
			return nil, fmt.Errorf("module %q: function %q: %w", name, fn.Name(), ErrDuplicate)
		}
		e.byName[fn.Name()] = fn
		e.fns = append(e.fns, fn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed && !r.late {
		return nil, fmt.Errorf("module %q: %w", name, ErrSealed)
	}
	if _, exists := r.modules[name]; exists {
		return nil, fmt.Errorf("module %q: %w", name, ErrDuplicate)
	}
	e.holder = holder.New(name, m)
	r.modules[name] = e
	r.order = append(r.order, name)

	r.logger.Debug("Registered module.", "module", name, "functions", len(e.fns))
	return e, nil
}

func (r *Registry) remove(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modules[e.name] != e {
		return
	}
	delete(r.modules, e.name)
	for i, n := range r.order {
		if n == e.name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Seal ends the startup phase. Further registration fails with ErrSealed
// unless the registry was built WithLateRegistration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the descriptor registered as module.fn. Descriptors of
// torn down modules are still returned.
func (r *Registry) Lookup(module, fn string) (*function.Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.modules[module]
	if !ok {
		return nil, false
	}
	f, ok := e.byName[fn]
	return f, ok
}

// Holder returns the holder of the module's live instance.
func (r *Registry) Holder(module string) (*holder.Holder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.modules[module]
	if !ok {
		return nil, false
	}
	return e.holder, true
}

// Enumerate returns module names in registration order.
func (r *Registry) Enumerate() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Describe returns the discovery metadata of a module's functions in
// declaration order.
func (r *Registry) Describe(module string) ([]function.Info, bool) {
	r.mu.RLock()
	e, ok := r.modules[module]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make([]function.Info, len(e.fns))
	for i, fn := range e.fns {
		out[i] = fn.Info()
	}
	return out, true
}

// Functions returns the descriptors registered under module in declaration
// order.
func (r *Registry) Functions(module string) ([]*function.Function, bool) {
	r.mu.RLock()
	e, ok := r.modules[module]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make([]*function.Function, len(e.fns))
	copy(out, e.fns)
	return out, true
}

// Teardown destroys the module's instance: its holder stops accepting calls,
// outstanding promises are rejected, then OnDestroy runs. The descriptors stay
// registered so callers can tell a torn down module from a missing one.
func (r *Registry) Teardown(ctx context.Context, module string) error {
	r.mu.RLock()
	e, ok := r.modules[module]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("module %q: %w", module, ErrUnknownModule)
	}
	return r.teardown(ctx, e)
}

func (r *Registry) teardown(ctx context.Context, e *entry) error {
	logger := ctxlog.FromContext(ctx)
	pending := e.holder.Pending()
	if !e.holder.Teardown(fmt.Errorf("module %q: %w", e.name, holder.ErrTornDown)) {
		return nil
	}
	logger.Debug("Module torn down.", "module", e.name, "abandoned", pending)

	d, ok := e.module.(Destroyer)
	if !ok {
		return nil
	}
	if err := d.OnDestroy(ctx); err != nil {
		logger.Error("Module destroy hook failed.", "module", e.name, "error", err)
		return fmt.Errorf("module %q: destroy: %w", e.name, err)
	}
	return nil
}

// Close tears down every module in reverse registration order and returns
// all destroy failures joined.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		entries = append(entries, r.modules[r.order[i]])
	}
	r.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := r.teardown(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
