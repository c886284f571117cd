package holder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nativebridge/internal/promise"
)

type counter struct{ n int }

func TestNew(t *testing.T) {
	a := New("calc", &counter{})
	b := New("calc", &counter{})

	assert.Equal(t, "calc", a.Module())
	assert.True(t, a.Alive())
	assert.NotEqual(t, a.ID(), b.ID(), "every instance gets its own identity token")
	assert.Contains(t, a.String(), "calc#")
}

func TestInstanceOf(t *testing.T) {
	h := New("calc", &counter{n: 3})

	c, err := InstanceOf[*counter](h)
	require.NoError(t, err)
	assert.Equal(t, 3, c.n)

	_, err = InstanceOf[string](h)
	require.Error(t, err)

	_, err = InstanceOf[*counter](nil)
	require.Error(t, err)
}

func TestTrack_UntracksOnSettle(t *testing.T) {
	h := New("timer", nil)
	p := promise.New()
	h.Track(p)
	assert.Equal(t, 1, h.Pending())

	require.NoError(t, p.Resolve(nil))
	assert.Equal(t, 0, h.Pending())
}

func TestTeardown_AbandonsPending(t *testing.T) {
	h := New("timer", nil)
	p := promise.New()
	h.Track(p)

	reason := errors.New("gone")
	assert.True(t, h.Teardown(reason))
	assert.False(t, h.Alive())
	assert.False(t, h.Teardown(nil), "teardown happens once")

	_, err := p.Await(context.Background())
	assert.Same(t, reason, err)
	assert.True(t, p.Abandoned())
	assert.Equal(t, 0, h.Pending())
}

func TestTrack_AfterTeardown(t *testing.T) {
	h := New("timer", nil)
	h.Teardown(nil)

	p := promise.New()
	h.Track(p)
	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, ErrTornDown)
}
