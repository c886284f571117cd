package integration_tests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/nativebridge/internal/app"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/testutil"
)

// scenario is one end-to-end run: manifests and a script on disk, the Go
// modules under test, and an optional run timeout.
type scenario struct {
	files   map[string]string // paths relative to the modules directory
	script  string
	modules []registry.Module
	timeout time.Duration
}

// harnessResult holds the outcomes of an integration test run.
type harnessResult struct {
	Output string
	Err    error
	App    *app.App
}

// runIntegrationTest writes the scenario to a temporary directory, builds the
// app and runs the script. Startup panics are returned as errors.
func runIntegrationTest(t *testing.T, sc scenario) *harnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	modulesDir := filepath.Join(tmpDir, "modules")
	require.NoError(t, os.Mkdir(modulesDir, 0o755))
	for name, content := range sc.files {
		path := filepath.Join(modulesDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	scriptPath := filepath.Join(tmpDir, "main.js")
	require.NoError(t, os.WriteFile(scriptPath, []byte(sc.script), 0o644))

	cfg := &app.Config{
		ScriptPath:  scriptPath,
		ModulesPath: modulesDir,
		LogLevel:    "debug",
		LogFormat:   "text",
		Timeout:     sc.timeout,
	}
	out := &testutil.SafeBuffer{}

	t.Cleanup(func() {
		if os.Getenv("NB_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})

	var testApp *app.App
	var panicErr any
	func() {
		defer func() { panicErr = recover() }()
		testApp = app.NewApp(out, cfg, sc.modules...)
	}()
	if panicErr != nil {
		return &harnessResult{
			Output: out.String(),
			Err:    fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	err := testApp.Run(context.Background())
	return &harnessResult{Output: out.String(), Err: err, App: testApp}
}
