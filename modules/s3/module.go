// Package s3 uploads files to pre-signed S3 URLs. It sends requests through
// the client owned by the http_client module, which must be registered
// first.
package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/dispatch"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
	"github.com/vk/nativebridge/modules/http_client"
)

// ErrNoHTTPClient is returned by OnCreate when http_client is not registered.
var ErrNoHTTPClient = errors.New("s3 requires the http_client module")

// Module implements the registry.Module interface for this package.
type Module struct {
	httpHolder *holder.Holder
	http       *http_client.Module
}

// Name returns the module's registered name.
func (m *Module) Name() string { return "s3" }

// Functions returns the descriptors exported by s3.
func (m *Module) Functions() []*function.Function {
	return []*function.Function{
		function.NewAsync("upload", []types.Descriptor{
			types.String,
			types.String,
			types.Optional(types.String),
		}, onUpload),
	}
}

// OnCreate resolves the http_client instance this module sends through.
func (m *Module) OnCreate(_ context.Context, r *registry.Registry) error {
	h, ok := r.Holder("http_client")
	if !ok {
		return ErrNoHTTPClient
	}
	client, err := holder.InstanceOf[*http_client.Module](h)
	if err != nil {
		return err
	}
	m.httpHolder, m.http = h, client
	return nil
}

// onUpload PUTs the file at source_path to upload_url. The content type
// is guessed from the file extension unless given.
func onUpload(ctx context.Context, h *holder.Holder, args []any, p *promise.Promise) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		_ = p.Reject(err)
		return
	}
	if !m.httpHolder.Alive() {
		_ = p.Reject(fmt.Errorf("s3.upload: http_client: %w", dispatch.ErrModuleUnavailable))
		return
	}

	sourcePath, uploadURL := args[0].(string), args[1].(string)
	contentType, _ := args[2].(string)

	go func() {
		out, err := m.upload(ctx, sourcePath, uploadURL, contentType)
		if err != nil {
			_ = p.Reject(err)
			return
		}
		_ = p.Resolve(out)
	}()
}

func (m *Module) upload(ctx context.Context, sourcePath, uploadURL, contentType string) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file '%s': %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for '%s': %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 upload request: %w", err)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(sourcePath))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file to S3", "source", sourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := m.http.Client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("S3 upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded file", "status", resp.Status)
	return map[string]any{
		"success": true,
		"status":  resp.Status,
	}, nil
}
