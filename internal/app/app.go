package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/dispatch"
	"github.com/vk/nativebridge/internal/manifest"
	"github.com/vk/nativebridge/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	manifests  *manifest.Model
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// With no modules given, the core modules are registered.
//
// A module that fails to register or disagrees with its manifest is a
// programmer error, so NewApp panics.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	opts := []registry.Option{registry.WithLogger(logger)}
	if cfg.LateRegistration {
		opts = append(opts, registry.WithLateRegistration())
	}
	reg := registry.New(opts...)

	var err error
	if len(modules) == 0 {
		err = reg.RegisterPackage(ctx, corePackage{out: outW})
	} else {
		for _, m := range modules {
			if err = reg.RegisterModule(ctx, m); err != nil {
				break
			}
		}
	}
	if err != nil {
		panic(fmt.Errorf("failed to register modules: %w", err))
	}
	logger.Debug("All Go modules registered.", "count", len(reg.Enumerate()))

	a := &App{
		outW:       outW,
		ctx:        ctx,
		logger:     logger,
		config:     cfg,
		registry:   reg,
		dispatcher: dispatch.New(reg),
	}

	if err := a.loadManifests(); err != nil {
		_ = reg.Close(ctx)
		panic(err)
	}

	reg.Seal()
	logger.Debug("Registry sealed.", "late_registration", cfg.LateRegistration)
	return a
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Dispatcher returns the dispatcher bound to the application's registry.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}
