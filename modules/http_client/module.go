// Package http_client provides a stateful, shareable HTTP client and an async
// request function that uses it.
//
// The client is created when the module is registered and its idle
// connections are closed on teardown. Other modules can reuse it through
// Client (see modules/s3).
package http_client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
)

// DefaultTimeout applies when Module.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Module implements the registry.Module interface. It owns one *http.Client
// for the lifetime of its registration.
type Module struct {
	Timeout time.Duration

	client *http.Client
}

// Name returns the module's registered name.
func (m *Module) Name() string { return "http_client" }

// Functions returns the descriptors exported by http_client.
func (m *Module) Functions() []*function.Function {
	return []*function.Function{
		function.NewAsync("request", []types.Descriptor{
			types.String,
			types.Optional(types.String),
			types.Optional(types.String),
		}, onRequest),
	}
}

// OnCreate builds the shared client.
func (m *Module) OnCreate(ctx context.Context, _ *registry.Registry) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctxlog.FromContext(ctx).Debug("HTTP client created.", "timeout", timeout)
	return nil
}

// OnDestroy closes idle connections.
func (m *Module) OnDestroy(context.Context) error {
	if m.client != nil {
		m.client.CloseIdleConnections()
	}
	return nil
}

// Client returns the shared client, or nil before OnCreate.
func (m *Module) Client() *http.Client { return m.client }

// onRequest performs method (default GET) against url with an optional
// body and resolves with status_code, body and headers.
func onRequest(ctx context.Context, h *holder.Holder, args []any, p *promise.Promise) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		_ = p.Reject(err)
		return
	}

	url := args[0].(string)
	method := http.MethodGet
	if s, ok := args[1].(string); ok && s != "" {
		method = strings.ToUpper(s)
	}
	var body io.Reader
	if s, ok := args[2].(string); ok {
		body = strings.NewReader(s)
	}

	go func() {
		out, err := m.do(ctx, method, url, body)
		if err != nil {
			_ = p.Reject(err)
			return
		}
		_ = p.Resolve(out)
	}()
}

func (m *Module) do(ctx context.Context, method, url string, body io.Reader) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", url)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(bodyBytes),
		"headers":     headers,
	}, nil
}
