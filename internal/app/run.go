package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vk/nativebridge/internal/catalog"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/jshost"
)

// Run executes the main application logic: it prints the catalog or runs the
// configured script, then tears every module down.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startHealthcheckServer()
	defer func() {
		err = errors.Join(err, a.closeHealthcheckServer(), a.registry.Close(ctx))
		a.logger.Debug("App.Run method finished.")
	}()

	if a.config.Describe {
		return catalog.Build(a.registry, a.manifests).WriteYAML(a.outW)
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	src, err := os.ReadFile(a.config.ScriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	host, err := jshost.New(ctx, a.registry, a.dispatcher)
	if err != nil {
		return fmt.Errorf("failed to start script host: %w", err)
	}

	a.logger.Info("🚀 Running script...", "script", a.config.ScriptPath)
	result, err := host.Run(ctx, a.config.ScriptPath, string(src))
	if err != nil {
		return err
	}
	a.logger.Info("🏁 Script finished.")

	if result != nil {
		out, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode script result: %w", err)
		}
		fmt.Fprintln(a.outW, string(out))
	}
	return nil
}
