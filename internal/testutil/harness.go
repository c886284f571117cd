package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/dispatch"
	"github.com/vk/nativebridge/internal/manifest"
	"github.com/vk/nativebridge/internal/registry"
)

// CallTimeout bounds every call made through Harness.Call.
const CallTimeout = 5 * time.Second

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness is a registry populated with the modules under test, plus a
// dispatcher and a debug logger that writes to Logs.
type Harness struct {
	Ctx        context.Context
	Logs       *SafeBuffer
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
}

// NewHarness registers modules and closes the registry when the test ends.
// Set NB_TEST_LOGS=true to dump the captured log after each test.
func NewHarness(t *testing.T, modules ...registry.Module) *Harness {
	t.Helper()

	logs := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	reg := registry.New(registry.WithLogger(logger))
	for _, m := range modules {
		require.NoError(t, reg.RegisterModule(ctx, m))
	}

	t.Cleanup(func() {
		_ = reg.Close(ctx)
		if os.Getenv("NB_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return &Harness{
		Ctx:        ctx,
		Logs:       logs,
		Registry:   reg,
		Dispatcher: dispatch.New(reg),
	}
}

// Call invokes module.fn and waits for async results.
func (h *Harness) Call(module, fn string, args ...any) (any, error) {
	ctx, cancel := context.WithTimeout(h.Ctx, CallTimeout)
	defer cancel()
	return h.Dispatcher.Call(ctx, module, fn, args...)
}

// RequireManifest parses the manifest at path and checks it against the
// registered modules.
func (h *Harness) RequireManifest(t *testing.T, path string) {
	t.Helper()

	src, err := os.ReadFile(path)
	require.NoError(t, err)
	modules, err := manifest.Parse(h.Ctx, src, path)
	require.NoError(t, err)

	model := manifest.NewModel()
	for _, m := range modules {
		require.NoError(t, model.Add(m))
	}
	require.NoError(t, manifest.Validate(h.Ctx, model, h.Registry))
}
