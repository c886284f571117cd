package integration_tests

import (
	"context"
	"sync/atomic"

	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/registry"
)

// mockModule registers fixed functions under a name.
type mockModule struct {
	name string
	fns  []*function.Function
}

func (m *mockModule) Name() string                    { return m.name }
func (m *mockModule) Functions() []*function.Function { return m.fns }

// lifecycleSpyModule counts its create and destroy hooks.
type lifecycleSpyModule struct {
	mockModule
	created   atomic.Int32
	destroyed atomic.Int32
}

func (m *lifecycleSpyModule) OnCreate(context.Context, *registry.Registry) error {
	m.created.Add(1)
	return nil
}

func (m *lifecycleSpyModule) OnDestroy(context.Context) error {
	m.destroyed.Add(1)
	return nil
}
