// Package socketio talks to Socket.IO servers over WebSocket.
//
// request is a one-shot exchange: connect, optionally emit, wait for a reply
// event, disconnect. connect, emit and disconnect manage long-lived
// connections identified by an opaque handle; every connection still open is
// closed when the module is torn down.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/types"
	"github.com/zishang520/engine.io-client-go/transports"
	eiotypes "github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultConnectTimeout = 15 * time.Second
	defaultNamespace      = "/"
)

// ErrUnknownConnection is returned for handles that were never issued or
// are already disconnected.
var ErrUnknownConnection = errors.New("unknown socket.io connection")

// requestOptions is the single argument of request.
var requestOptions = types.Object(map[string]types.Descriptor{
	"url":                  types.String,
	"on_event":             types.String,
	"namespace":            types.Optional(types.String),
	"emit_event":           types.Optional(types.String),
	"emit_data":            types.Optional(types.Any),
	"timeout":              types.Optional(types.String),
	"insecure_skip_verify": types.Optional(types.Bool),
})

// Module implements the registry.Module interface for this package.
type Module struct {
	mu        sync.Mutex
	conns     map[string]*socket.Socket
	destroyed bool
}

// Name returns the module's registered name.
func (m *Module) Name() string { return "socketio" }

// Functions returns the descriptors exported by socketio.
func (m *Module) Functions() []*function.Function {
	optString := types.Optional(types.String)
	return []*function.Function{
		function.NewAsync("request", []types.Descriptor{requestOptions}, onRequest),
		function.NewAsync("connect", []types.Descriptor{
			types.String, optString, types.Optional(types.Bool), optString,
		}, onConnect),
		function.NewAsync("emit", []types.Descriptor{
			types.String, types.String, types.Optional(types.Any), optString, optString,
		}, onEmit),
		function.NewSync("disconnect", []types.Descriptor{types.String}, onDisconnect),
	}
}

// OnDestroy disconnects every open connection.
func (m *Module) OnDestroy(ctx context.Context) error {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.destroyed = true
	m.mu.Unlock()

	for handle, io := range conns {
		ctxlog.FromContext(ctx).Info("Destroying socket.io client instance", "handle", handle, "sid", io.Id())
		io.Disconnect()
	}
	return nil
}

// Open returns the number of open connections.
func (m *Module) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// store keeps io open under a new handle. Once the module is destroyed it
// disconnects io instead and reports false.
func (m *Module) store(io *socket.Socket) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		io.Disconnect()
		return "", false
	}
	if m.conns == nil {
		m.conns = make(map[string]*socket.Socket)
	}
	handle := uuid.NewString()
	m.conns[handle] = io
	return handle, true
}

func (m *Module) conn(handle string) (*socket.Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	io, ok := m.conns[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, handle)
	}
	return io, nil
}

// dialer holds what is needed to open one socket.
type dialer struct {
	url                string
	namespace          string
	insecureSkipVerify bool
}

func (d dialer) dial(logger *slog.Logger) (*socket.Socket, error) {
	parsedURL, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("failed to parse URL: %q is not absolute", d.url)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if d.insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(eiotypes.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	return manager.Socket(d.namespace, opts), nil
}

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	value any
	err   error
}

// offer sends r without blocking. Only the first result of an operation is
// kept; reconnect attempts can report further errors.
func offer(done chan<- opResult, r opResult) {
	select {
	case done <- r:
	default:
	}
}

func connectError(errs []any) error {
	if len(errs) > 0 {
		if err, ok := errs[0].(error); ok {
			return err
		}
		return fmt.Errorf("%v", errs[0])
	}
	return errors.New("connect_error")
}

func parseTimeout(logger *slog.Logger, raw any, fallback time.Duration) time.Duration {
	s, ok := raw.(string)
	if !ok || s == "" {
		return fallback
	}
	timeout, err := time.ParseDuration(s)
	if err != nil || timeout <= 0 {
		logger.Warn("Failed to parse timeout, using default", "inputTimeout", s, "default", fallback, "error", err)
		return fallback
	}
	return timeout
}

func stringOr(raw any, fallback string) string {
	if s, ok := raw.(string); ok && s != "" {
		return s
	}
	return fallback
}

func dataString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// onRequest connects, emits emit_event (when set) once connected, and
// resolves with the first on_event payload as {response_data}.
func onRequest(ctx context.Context, _ *holder.Holder, args []any, p *promise.Promise) {
	opts := args[0].(map[string]any)
	onEvent := opts["on_event"].(string)
	emitEvent := stringOr(opts["emit_event"], "")
	emitData := opts["emit_data"]
	d := dialer{url: opts["url"].(string), namespace: stringOr(opts["namespace"], defaultNamespace)}
	d.insecureSkipVerify, _ = opts["insecure_skip_verify"].(bool)

	logger := ctxlog.FromContext(ctx).With("url", d.url, "onEvent", onEvent, "emitEvent", emitEvent)
	timeout := parseTimeout(logger, opts["timeout"], defaultTimeout)

	io, err := d.dial(logger)
	if err != nil {
		_ = p.Reject(err)
		return
	}

	go func() {
		logger.Debug("Handler started")
		defer logger.Debug("Handler finished")
		defer io.Disconnect()

		var isConnected atomic.Bool
		done := make(chan opResult, 1)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		io.On(eiotypes.EventName("connect"), func(...any) {
			isConnected.Store(true)
			logger.Info("Successfully connected", "namespace", d.namespace, "sid", io.Id())
			if emitEvent != "" {
				logger.Info("Emitting event", "event", emitEvent, "data", dataString(emitData))
				io.Emit(emitEvent, emitData)
			}
		})
		io.On(eiotypes.EventName("connect_error"), func(errs ...any) {
			offer(done, opResult{err: fmt.Errorf("socket.io connection failed: %w", connectError(errs))})
		})
		io.On(eiotypes.EventName(onEvent), func(data ...any) {
			var responseData any
			if len(data) > 0 {
				responseData = data[0]
			}
			offer(done, opResult{value: map[string]any{"response_data": responseData}})
		})

		io.Connect()

		select {
		case <-timer.C:
			if isConnected.Load() {
				_ = p.Reject(fmt.Errorf("timed out after connecting while waiting for event '%s'", onEvent))
			} else {
				_ = p.Reject(errors.New("timed out while waiting for initial connection"))
			}
		case res := <-done:
			if res.err != nil {
				_ = p.Reject(res.err)
				return
			}
			_ = p.Resolve(res.value)
		}
	}()
}

// onConnect opens a long-lived connection and resolves with its handle.
func onConnect(ctx context.Context, h *holder.Holder, args []any, p *promise.Promise) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		_ = p.Reject(err)
		return
	}
	d := dialer{url: args[0].(string), namespace: stringOr(args[1], defaultNamespace)}
	d.insecureSkipVerify, _ = args[2].(bool)

	logger := ctxlog.FromContext(ctx).With("url", d.url)
	timeout := parseTimeout(logger, args[3], defaultConnectTimeout)

	io, err := d.dial(logger)
	if err != nil {
		_ = p.Reject(err)
		return
	}

	go func() {
		connectChan := make(chan error, 1)
		io.Once(eiotypes.EventName("connect"), func(...any) {
			logger.Info("Successfully connected", "sid", io.Id())
			select {
			case connectChan <- nil:
			default:
			}
		})
		io.Once(eiotypes.EventName("connect_error"), func(errs ...any) {
			select {
			case connectChan <- connectError(errs):
			default:
			}
		})

		logger.Debug("Initiating connection...")
		io.Connect()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case err := <-connectChan:
			if err != nil {
				io.Disconnect()
				_ = p.Reject(fmt.Errorf("socket.io connection failed: %w", err))
				return
			}
			handle, ok := m.store(io)
			if !ok {
				_ = p.Reject(holder.ErrTornDown)
				return
			}
			_ = p.Resolve(handle)
		case <-timer.C:
			io.Disconnect()
			_ = p.Reject(fmt.Errorf("timed out after %v waiting for socket.io connection", timeout))
		}
	}()
}

// onEmit sends emit_event on an open connection. With on_event set it
// resolves with the first reply as {response_data}; otherwise it resolves
// with null once the event is sent.
func onEmit(ctx context.Context, h *holder.Holder, args []any, p *promise.Promise) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		_ = p.Reject(err)
		return
	}
	io, err := m.conn(args[0].(string))
	if err != nil {
		_ = p.Reject(err)
		return
	}
	if !io.Connected() {
		_ = p.Reject(fmt.Errorf("socket.io connection %s is not connected", args[0]))
		return
	}

	emitEvent, emitData := args[1].(string), args[2]
	onEvent := stringOr(args[3], "")
	logger := ctxlog.FromContext(ctx).With("sid", io.Id())
	timeout := parseTimeout(logger, args[4], defaultTimeout)

	if onEvent == "" {
		logger.Debug("Emitting event", "event", emitEvent, "data", dataString(emitData))
		io.Emit(emitEvent, emitData)
		_ = p.Resolve(nil)
		return
	}

	done := make(chan opResult, 1)
	io.Once(eiotypes.EventName(onEvent), func(data ...any) {
		var responseData any
		if len(data) > 0 {
			responseData = data[0]
		}
		offer(done, opResult{value: map[string]any{"response_data": responseData}})
	})

	logger.Info("Executing request", "emitEvent", emitEvent, "onEvent", onEvent)
	io.Emit(emitEvent, emitData)

	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = p.Reject(fmt.Errorf("timed out after %v waiting for event '%s'", timeout, onEvent))
		case res := <-done:
			_ = p.Resolve(res.value)
		}
	}()
}

// onDisconnect closes a connection opened by connect.
func onDisconnect(ctx context.Context, h *holder.Holder, args []any) (any, error) {
	m, err := holder.InstanceOf[*Module](h)
	if err != nil {
		return nil, err
	}
	handle := args[0].(string)

	m.mu.Lock()
	io, ok := m.conns[handle]
	delete(m.conns, handle)
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, handle)
	}

	ctxlog.FromContext(ctx).Debug("Disconnecting socket client", "handle", handle)
	io.Disconnect()
	return nil, nil
}
