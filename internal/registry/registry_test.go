package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/types"
)

func add() *function.Function {
	return function.NewSync("add", []types.Descriptor{types.Number, types.Number},
		func(_ context.Context, _ *holder.Holder, args []any) (any, error) {
			return args[0].(float64) + args[1].(float64), nil
		})
}

func delay() *function.Function {
	return function.NewAsync("delay", []types.Descriptor{types.Number},
		func(_ context.Context, _ *holder.Holder, _ []any, p *promise.Promise) {})
}

// lifecycleModule records its hooks in a shared journal.
type lifecycleModule struct {
	name       string
	journal    *[]string
	createErr  error
	destroyErr error
}

func (m *lifecycleModule) Name() string                    { return m.name }
func (m *lifecycleModule) Functions() []*function.Function { return []*function.Function{add()} }

func (m *lifecycleModule) OnCreate(_ context.Context, r *Registry) error {
	*m.journal = append(*m.journal, "create:"+m.name)
	return m.createErr
}

func (m *lifecycleModule) OnDestroy(context.Context) error {
	*m.journal = append(*m.journal, "destroy:"+m.name)
	return m.destroyErr
}

type pkg []Module

func (p pkg) Modules() []Module { return p }

func TestRegister_LookupAndEnumerate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("math", add(), delay()))
	require.NoError(t, r.Register("alpha"))

	fn, ok := r.Lookup("math", "add")
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name())

	_, ok = r.Lookup("math", "missing")
	assert.False(t, ok)
	_, ok = r.Lookup("nope", "add")
	assert.False(t, ok)

	assert.Equal(t, []string{"math", "alpha"}, r.Enumerate(), "enumeration follows registration order")

	infos, ok := r.Describe("math")
	require.True(t, ok)
	require.Len(t, infos, 2)
	assert.Equal(t, "add", infos[0].Name)
	assert.Equal(t, function.Async, infos[1].Kind)

	fns, ok := r.Functions("math")
	require.True(t, ok)
	assert.Len(t, fns, 2)
}

func TestLookup_Idempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("math", add()))

	first, _ := r.Lookup("math", "add")
	for i := 0; i < 10; i++ {
		again, ok := r.Lookup("math", "add")
		require.True(t, ok)
		assert.Same(t, first, again)
		assert.Equal(t, first.Signature(), again.Signature())
		assert.Equal(t, first.Kind(), again.Kind())
	}
}

func TestRegister_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(r *Registry)
		module  string
		fns     []*function.Function
		wantErr error
	}{
		{
			name:    "duplicate module",
			setup:   func(r *Registry) { require.NoError(t, r.Register("math", add())) },
			module:  "math",
			fns:     []*function.Function{delay()},
			wantErr: ErrDuplicate,
		},
		{
			name:    "duplicate function within module",
			module:  "math",
			fns:     []*function.Function{add(), add()},
			wantErr: ErrDuplicate,
		},
		{
			name:    "sealed",
			setup:   func(r *Registry) { r.Seal() },
			module:  "math",
			fns:     []*function.Function{add()},
			wantErr: ErrSealed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := New()
			if tc.setup != nil {
				tc.setup(r)
			}
			err := r.Register(tc.module, tc.fns...)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Error(t, New().Register(""))
	assert.Error(t, New().Register("m", nil))
}

func TestRegister_FailedRegistrationLeavesNoTrace(t *testing.T) {
	r := New()
	require.Error(t, r.Register("math", add(), add()))
	assert.Empty(t, r.Enumerate())
	_, ok := r.Holder("math")
	assert.False(t, ok)
}

func TestLateRegistration(t *testing.T) {
	r := New(WithLateRegistration())
	r.Seal()
	assert.True(t, r.Sealed())
	require.NoError(t, r.Register("math", add()))
}

func TestRegisterModule_Lifecycle(t *testing.T) {
	var journal []string
	r := New()
	ctx := context.Background()

	require.NoError(t, r.RegisterPackage(ctx, pkg{
		&lifecycleModule{name: "a", journal: &journal},
		&lifecycleModule{name: "b", journal: &journal},
	}))

	h, ok := r.Holder("a")
	require.True(t, ok)
	assert.True(t, h.Alive())
	inst, err := holder.InstanceOf[*lifecycleModule](h)
	require.NoError(t, err)
	assert.Equal(t, "a", inst.name)

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, []string{"create:a", "create:b", "destroy:b", "destroy:a"}, journal,
		"modules are destroyed in reverse registration order")
	assert.False(t, h.Alive())

	// Closing twice does not re-run destroy hooks.
	require.NoError(t, r.Close(ctx))
	assert.Len(t, journal, 4)
}

func TestRegisterModule_CreateFailureRollsBack(t *testing.T) {
	var journal []string
	r := New()
	boom := errors.New("boom")

	err := r.RegisterModule(context.Background(), &lifecycleModule{name: "a", journal: &journal, createErr: boom})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, r.Enumerate())
	_, ok := r.Lookup("a", "add")
	assert.False(t, ok)
}

func TestTeardown(t *testing.T) {
	var journal []string
	r := New()
	ctx := context.Background()
	boom := errors.New("disk on fire")
	require.NoError(t, r.RegisterModule(ctx, &lifecycleModule{name: "a", journal: &journal, destroyErr: boom}))
	require.NoError(t, r.RegisterModule(ctx, &lifecycleModule{name: "b", journal: &journal}))

	h, _ := r.Holder("a")
	p := promise.New()
	h.Track(p)

	err := r.Teardown(ctx, "a")
	require.ErrorIs(t, err, boom)

	_, err = p.Await(ctx)
	assert.ErrorIs(t, err, holder.ErrTornDown, "pending work is rejected on teardown")

	_, ok := r.Lookup("a", "add")
	assert.True(t, ok, "descriptors outlive the instance")

	assert.ErrorIs(t, r.Teardown(ctx, "zzz"), ErrUnknownModule)

	// Only b is left to destroy.
	require.NoError(t, r.Close(ctx))
	assert.Equal(t, []string{"create:a", "create:b", "destroy:a", "destroy:b"}, journal)
}

func TestClose_JoinsErrors(t *testing.T) {
	var journal []string
	r := New()
	ctx := context.Background()
	errA, errB := errors.New("a failed"), errors.New("b failed")
	require.NoError(t, r.RegisterModule(ctx, &lifecycleModule{name: "a", journal: &journal, destroyErr: errA}))
	require.NoError(t, r.RegisterModule(ctx, &lifecycleModule{name: "b", journal: &journal, destroyErr: errB}))

	err := r.Close(ctx)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestConcurrentLookup(t *testing.T) {
	r := New(WithLateRegistration())
	require.NoError(t, r.Register("math", add()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := r.Lookup("math", "add")
				assert.True(t, ok)
				_ = r.Enumerate()
			}
		}()
		go func(i int) {
			defer wg.Done()
			_ = r.Register(string(rune('a'+i)), delay())
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Enumerate(), 9)
}
