package s3

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nativebridge/internal/dispatch"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/testutil"
	"github.com/vk/nativebridge/modules/http_client"
)

type received struct {
	contentType string
	body        string
}

func newBucket(t *testing.T, status int) (*httptest.Server, chan received) {
	t.Helper()
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{contentType: r.Header.Get("Content-Type"), body: string(body)}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestManifest(t *testing.T) {
	h := testutil.NewHarness(t, &http_client.Module{}, &Module{})
	h.RequireManifest(t, "manifest.hcl")
}

func TestUpload(t *testing.T) {
	testCases := []struct {
		name            string
		file            string
		contentType     any
		wantContentType string
	}{
		{name: "type from extension", file: "data.json", wantContentType: "application/json"},
		{name: "unknown extension", file: "data.bin123", wantContentType: "application/octet-stream"},
		{name: "explicit type", file: "data.json", contentType: "text/plain", wantContentType: "text/plain"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, got := newBucket(t, http.StatusOK)
			path := writeFile(t, tc.file, `{"a":1}`)
			h := testutil.NewHarness(t, &http_client.Module{}, &Module{})

			out, err := h.Call("s3", "upload", path, srv.URL+"/bucket/key", tc.contentType)
			require.NoError(t, err)
			assert.Equal(t, true, out.(map[string]any)["success"])

			req := <-got
			assert.Equal(t, tc.wantContentType, req.contentType)
			assert.Equal(t, `{"a":1}`, req.body)
		})
	}
}

func TestUpload_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		h := testutil.NewHarness(t, &http_client.Module{}, &Module{})
		_, err := h.Call("s3", "upload", filepath.Join(t.TempDir(), "nope"), "http://127.0.0.1:1", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open source file")
	})

	t.Run("rejected by bucket", func(t *testing.T) {
		srv, _ := newBucket(t, http.StatusForbidden)
		h := testutil.NewHarness(t, &http_client.Module{}, &Module{})
		_, err := h.Call("s3", "upload", writeFile(t, "a.txt", "x"), srv.URL, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403 Forbidden")
	})

	t.Run("http_client torn down", func(t *testing.T) {
		h := testutil.NewHarness(t, &http_client.Module{}, &Module{})
		require.NoError(t, h.Registry.Teardown(h.Ctx, "http_client"))
		_, err := h.Call("s3", "upload", writeFile(t, "a.txt", "x"), "http://127.0.0.1:1", nil)
		assert.ErrorIs(t, err, dispatch.ErrModuleUnavailable)
	})
}

func TestOnCreate_RequiresHTTPClient(t *testing.T) {
	reg := registry.New()
	err := reg.RegisterModule(t.Context(), &Module{})
	require.ErrorIs(t, err, ErrNoHTTPClient)
	_, ok := reg.Holder("s3")
	assert.False(t, ok)
}
