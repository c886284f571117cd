package app

import (
	"fmt"

	"github.com/vk/nativebridge/internal/manifest"
)

// loadManifests reads the module manifests and checks them against the
// registered Go code. Without a modules path there is nothing to check.
func (a *App) loadManifests() error {
	if a.config.ModulesPath == "" {
		a.logger.Warn("No modules path configured, skipping manifest validation.")
		return nil
	}
	a.logger.Debug("Loading manifests...", "modules_path", a.config.ModulesPath)

	model, err := manifest.LoadDir(a.ctx, a.config.ModulesPath)
	if err != nil {
		return fmt.Errorf("failed to load manifests: %w", err)
	}
	if err := manifest.Validate(a.ctx, model, a.registry); err != nil {
		return err
	}

	a.manifests = model
	a.logger.Info("Registry loaded successfully.", "modules", len(a.registry.Enumerate()))
	return nil
}
