// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/fsutil"
)

// Model is the set of module manifests found under a directory.
type Model struct {
	Modules map[string]*Module
	order   []string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{Modules: make(map[string]*Module)}
}

// Add records m, rejecting a second declaration of the same module.
func (md *Model) Add(m *Module) error {
	if prev, exists := md.Modules[m.Name]; exists {
		return fmt.Errorf("module '%s' declared in both %s and %s", m.Name, prev.File, m.File)
	}
	md.Modules[m.Name] = m
	md.order = append(md.order, m.Name)
	return nil
}

// Names returns module names in the order they were loaded.
func (md *Model) Names() []string {
	out := make([]string, len(md.order))
	copy(out, md.order)
	return out
}

// LoadDir recursively loads every .hcl manifest under modulesPath.
func LoadDir(ctx context.Context, modulesPath string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading module manifests from modules path...", "path", modulesPath)

	filePaths, err := fsutil.FindFilesByExtension(modulesPath, ".hcl")
	if err != nil {
		logger.Error("Failed to walk modules directory", "path", modulesPath, "error", err)
		return nil, err
	}

	model := NewModel()
	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path", "path", modulesPath)
		return model, nil
	}

	logger.Debug("Found HCL files to load", "files", filePaths)

	parser := hclparse.NewParser()
	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
		}

		modules, diags := ParseFile(ctx, hclFile, filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to process module manifest in %s: %w", filePath, diags)
		}
		for _, m := range modules {
			if err := model.Add(m); err != nil {
				return nil, err
			}
		}
		logger.Debug("Successfully loaded manifests from HCL file", "file", filePath)
	}

	logger.Info("Module manifests loaded successfully.", "modules_loaded", len(model.Modules))
	return model, nil
}
