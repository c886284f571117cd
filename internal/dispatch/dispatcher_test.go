package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// spy wraps a descriptor and counts Convert calls.
type spy struct {
	types.Descriptor
	calls atomic.Int32
}

func (s *spy) Convert(raw any) (any, error) {
	s.calls.Add(1)
	return s.Descriptor.Convert(raw)
}

type fixture struct {
	reg       *registry.Registry
	d         *Dispatcher
	bodyCalls atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reg: registry.New()}
	f.d = New(f.reg)

	addFn := function.NewSync("add", []types.Descriptor{types.Number, types.Number},
		func(_ context.Context, _ *holder.Holder, args []any) (any, error) {
			f.bodyCalls.Add(1)
			return args[0].(float64) + args[1].(float64), nil
		})
	delayFn := function.NewAsync("delay", []types.Descriptor{types.Number},
		func(_ context.Context, _ *holder.Holder, args []any, p *promise.Promise) {
			f.bodyCalls.Add(1)
			go func() {
				time.Sleep(time.Duration(args[0].(float64)) * time.Millisecond)
				_ = p.Resolve(42.0)
			}()
		})
	require.NoError(t, f.reg.Register("math", addFn, delayFn))
	return f
}

func TestInvoke_SyncAdd(t *testing.T) {
	f := newFixture(t)
	out, err := f.d.Invoke(context.Background(), Call{Module: "math", Function: "add", Args: []any{2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.Value)
	assert.Nil(t, out.Promise)
}

func TestInvoke_ArityMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Invoke(context.Background(), Call{Module: "math", Function: "add", Args: []any{2}})
	require.ErrorIs(t, err, ErrArityMismatch)

	var ae *ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 2, ae.Want)
	assert.Equal(t, 1, ae.Got)
	assert.Zero(t, f.bodyCalls.Load(), "body must never run on arity mismatch")
}

func TestInvoke_TypeMismatchAtPosition(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Invoke(context.Background(), Call{Module: "math", Function: "add", Args: []any{"x", 3}})
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)

	var ae *ArgumentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 0, ae.Position)
	me, ok := ae.Mismatch()
	require.True(t, ok)
	assert.Equal(t, "number", me.Expected)
	assert.Equal(t, "string", me.Actual)
	assert.Zero(t, f.bodyCalls.Load())
}

func TestInvoke_AsyncDelay(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p := promise.New()
	var deliveries atomic.Int32
	p.OnSettle(func(promise.Result) { deliveries.Add(1) })

	out, err := f.d.Invoke(ctx, Call{Module: "math", Function: "delay", Args: []any{5}, Promise: p})
	require.NoError(t, err)
	assert.Same(t, p, out.Promise)

	v, err := p.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, int32(1), deliveries.Load())
}

func TestInvoke_FunctionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Invoke(context.Background(), Call{Module: "math", Function: "missing_fn"})
	assert.ErrorIs(t, err, ErrFunctionNotFound)

	_, err = f.d.Invoke(context.Background(), Call{Module: "nope", Function: "add"})
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestWellTypedCalls_ReturnBodyResult(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		name string
		args []any
		want float64
	}{
		{name: "ints", args: []any{1, 2}, want: 3},
		{name: "floats", args: []any{1.5, 2.25}, want: 3.75},
		{name: "mixed widths", args: []any{int8(-4), uint32(10)}, want: 6},
		{name: "numeric string", args: []any{"5", 1}, want: 6},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := f.d.Call(context.Background(), "math", "add", tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestArgumentValidation_StopsAtFirstFailure(t *testing.T) {
	reg := registry.New()
	spies := []*spy{{Descriptor: types.Number}, {Descriptor: types.Number}, {Descriptor: types.Number}, {Descriptor: types.Number}}
	var bodyRan bool
	require.NoError(t, reg.Register("m", function.NewSync("f",
		[]types.Descriptor{spies[0], spies[1], spies[2], spies[3]},
		func(context.Context, *holder.Holder, []any) (any, error) {
			bodyRan = true
			return nil, nil
		})))
	d := New(reg)

	for k := 0; k < len(spies); k++ {
		for _, s := range spies {
			s.calls.Store(0)
		}
		args := []any{1, 2, 3, 4}
		args[k] = "not a number"

		_, err := d.Invoke(context.Background(), Call{Module: "m", Function: "f", Args: args})
		var ae *ArgumentError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, k, ae.Position)
		for i, s := range spies {
			if i <= k {
				assert.Equal(t, int32(1), s.calls.Load(), "position %d evaluated once", i)
			} else {
				assert.Zero(t, s.calls.Load(), "position %d after the failure must not be evaluated", i)
			}
		}
	}
	assert.False(t, bodyRan)
}

func TestSyncRuntimeError_PassedThroughVerbatim(t *testing.T) {
	reg := registry.New()
	boom := errors.New("division by zero")
	require.NoError(t, reg.Register("m", function.NewSync("f", nil,
		func(context.Context, *holder.Holder, []any) (any, error) { return nil, boom })))

	_, err := New(reg).Call(context.Background(), "m", "f")
	assert.Same(t, boom, err)
}

func TestAsyncDoubleCompletion_CallerSeesFirst(t *testing.T) {
	reg := registry.New()
	logs := &bytes.Buffer{}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logs, nil)))
	require.NoError(t, reg.Register("m", function.NewAsync("f", nil,
		func(_ context.Context, _ *holder.Holder, _ []any, p *promise.Promise) {
			_ = p.Reject(errors.New("first"))
			_ = p.Resolve("second")
		})))

	_, err := New(reg).Call(ctx, "m", "f")
	require.EqualError(t, err, "first")
	assert.Equal(t, 1, strings.Count(logs.String(), "Promise settled more than once"))
	assert.Contains(t, logs.String(), "promise=m.f")
}

func TestPanics_AreRecovered(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("m",
		function.NewSync("s", nil, func(context.Context, *holder.Holder, []any) (any, error) { panic("kaboom") }),
		function.NewAsync("a", nil, func(context.Context, *holder.Holder, []any, *promise.Promise) { panic(errors.New("async kaboom")) }),
	))
	d := New(reg)

	_, err := d.Call(context.Background(), "m", "s")
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	_, err = d.Call(context.Background(), "m", "a")
	require.ErrorAs(t, err, &pe)
	assert.EqualError(t, errors.Unwrap(pe), "async kaboom")
}

func TestModuleUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, _ := f.reg.Holder("math")

	require.NoError(t, f.reg.Teardown(ctx, "math"))

	_, err := f.d.Invoke(ctx, Call{Module: "math", Function: "add", Args: []any{1, 2}})
	require.ErrorIs(t, err, ErrModuleUnavailable)
	assert.NotErrorIs(t, err, ErrFunctionNotFound, "torn down is distinct from never existed")

	_, err = f.d.Invoke(ctx, Call{Module: "math", Function: "add", Holder: h, Args: []any{1, 2}})
	assert.ErrorIs(t, err, ErrModuleUnavailable)
	assert.Zero(t, f.bodyCalls.Load())
}

func TestTeardown_AbandonsInFlightCall(t *testing.T) {
	reg := registry.New()
	release := make(chan struct{})
	settled := make(chan error, 1)
	require.NoError(t, reg.Register("m", function.NewAsync("wait", nil,
		func(_ context.Context, _ *holder.Holder, _ []any, p *promise.Promise) {
			go func() {
				<-release
				settled <- p.Resolve("too late")
			}()
		})))
	ctx := context.Background()

	out, err := New(reg).Invoke(ctx, Call{Module: "m", Function: "wait"})
	require.NoError(t, err)

	require.NoError(t, reg.Teardown(ctx, "m"))
	_, err = out.Promise.Await(ctx)
	assert.ErrorIs(t, err, holder.ErrTornDown)

	close(release)
	assert.ErrorIs(t, <-settled, promise.ErrAlreadySettled, "late completion is dropped")
}

func TestExplicitHolder(t *testing.T) {
	reg := registry.New()
	var seen *holder.Holder
	require.NoError(t, reg.Register("m", function.NewSync("who", nil,
		func(_ context.Context, h *holder.Holder, _ []any) (any, error) {
			seen = h
			return h.ID().String(), nil
		})))
	d := New(reg)

	other := holder.New("m", "second instance")
	out, err := d.Invoke(context.Background(), Call{Module: "m", Function: "who", Holder: other})
	require.NoError(t, err)
	assert.Same(t, other, seen)
	assert.Equal(t, other.ID().String(), out.Value)

	_, err = d.Invoke(context.Background(), Call{Module: "m", Function: "who", Holder: holder.New("x", nil)})
	assert.ErrorIs(t, err, ErrHolderMismatch)
	assert.NotErrorIs(t, err, ErrModuleUnavailable)
}

func TestInvoke_UnusableCtyArguments(t *testing.T) {
	testCases := []struct {
		name string
		arg  any
	}{
		{name: "unknown", arg: cty.UnknownVal(cty.Number)},
		{name: "marked", arg: cty.NumberIntVal(2).Mark("sensitive")},
		{name: "marked inside a tuple", arg: cty.TupleVal([]cty.Value{cty.NumberIntVal(2).Mark("sensitive")})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			var err error
			require.NotPanics(t, func() {
				_, err = f.d.Invoke(context.Background(), Call{Module: "math", Function: "add", Args: []any{tc.arg, 3}})
			})
			var ae *ArgumentError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, 0, ae.Position)
			assert.ErrorIs(t, err, ErrTypeMismatch)
			assert.Zero(t, f.bodyCalls.Load())
		})
	}
}

// panicky is a descriptor whose conversion always panics.
type panicky struct{ types.Descriptor }

func (panicky) Convert(any) (any, error) { panic("broken descriptor") }

func TestInvoke_PanickingDescriptorFailsItsPosition(t *testing.T) {
	reg := registry.New()
	called := false
	require.NoError(t, reg.Register("m", function.NewSync("f", []types.Descriptor{types.String, panicky{types.Number}},
		func(context.Context, *holder.Holder, []any) (any, error) {
			called = true
			return nil, nil
		})))

	_, err := New(reg).Invoke(context.Background(), Call{Module: "m", Function: "f", Args: []any{"ok", 1}})
	var ae *ArgumentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Position)
	assert.Contains(t, err.Error(), "broken descriptor")
	assert.False(t, called)
}

func TestInvoke_AsyncOutlivesCallerContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	var bodyCtx context.Context
	reg := registry.New()
	require.NoError(t, reg.Register("m", function.NewAsync("later", nil,
		func(ctx context.Context, _ *holder.Holder, _ []any, p *promise.Promise) {
			bodyCtx = ctx
			go func() {
				time.Sleep(20 * time.Millisecond)
				_ = p.Resolve("done")
			}()
		})))

	out, err := New(reg).Invoke(ctx, Call{Module: "m", Function: "later"})
	require.NoError(t, err)
	delay, err := f.d.Invoke(ctx, Call{Module: "math", Function: "delay", Args: []any{20}})
	require.NoError(t, err)
	cancel()

	assert.NoError(t, bodyCtx.Err())
	got, err := out.Promise.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	got, err = delay.Promise.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}

func TestConcurrentInvocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.d.Call(ctx, "math", "add", i, i)
			assert.NoError(t, err)
			assert.Equal(t, float64(2*i), v)

			v, err = f.d.Call(ctx, "math", "delay", 1)
			assert.NoError(t, err)
			assert.Equal(t, 42.0, v)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(64), f.bodyCalls.Load())
}

func TestFunctionNotFound_Suggestion(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		name     string
		module   string
		function string
		want     string
	}{
		{name: "function typo", module: "math", function: "ad", want: "math.add"},
		{name: "module typo", module: "mth", function: "add", want: "math.add"},
		{name: "nothing close", module: "math", function: "multiply", want: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.d.Invoke(context.Background(), Call{Module: tc.module, Function: tc.function})
			require.ErrorIs(t, err, ErrFunctionNotFound)

			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tc.want, nf.Suggestion)
			if tc.want != "" {
				assert.Contains(t, err.Error(), "did you mean "+tc.want+"?")
			}
		})
	}
}
