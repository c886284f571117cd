// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package manifest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/registry"
	"github.com/vk/nativebridge/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Validate performs a strict parity check between manifests and Go code.
// It checks the presence, kind, arity and argument types of every function,
// and reports all problems at once.
func Validate(ctx context.Context, model *Model, reg *registry.Registry) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	names := model.Names()
	sort.Strings(names)
	for _, name := range names {
		m := model.Modules[name]
		registered, ok := reg.Functions(name)
		if !ok {
			errs = append(errs, fmt.Sprintf("module '%s': declared in %s but not registered", name, m.File))
			continue
		}

		goFns := make(map[string]*function.Function, len(registered))
		for _, fn := range registered {
			goFns[fn.Name()] = fn
			if _, declared := m.Function(fn.Name()); !declared {
				errs = append(errs, fmt.Sprintf("module '%s': Go registers function '%s' which is not declared in manifest", name, fn.Name()))
			}
		}

		for _, decl := range m.Functions {
			goFn, ok := goFns[decl.Name]
			if !ok {
				errs = append(errs, fmt.Sprintf("module '%s': manifest declares function '%s' which is not registered", name, decl.Name))
				continue
			}
			errs = append(errs, compareFunction(ctx, name, decl, goFn)...)
		}
	}

	for _, name := range reg.Enumerate() {
		if _, ok := model.Modules[name]; !ok {
			logger.Warn("Registered module has no manifest; its functions are undocumented.", "module", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func compareFunction(ctx context.Context, module string, decl *Function, goFn *function.Function) []string {
	var errs []string
	where := fmt.Sprintf("module '%s', function '%s'", module, decl.Name)

	if decl.Kind != goFn.Kind() {
		errs = append(errs, fmt.Sprintf("%s: kind mismatch. Manifest declares %s but Go registers %s", where, decl.Kind, goFn.Kind()))
	}
	if len(decl.Args) != goFn.Arity() {
		errs = append(errs, fmt.Sprintf("%s: arity mismatch. Manifest declares %d argument(s) but Go registers %d", where, len(decl.Args), goFn.Arity()))
		return errs
	}

	for i, arg := range decl.Args {
		goArg := goFn.Arg(i)
		if arg.Type.Type().Equals(cty.DynamicPseudoType) {
			ctxlog.FromContext(ctx).Warn("Manifest has argument with 'type = any', which disables static type checking. Consider using a specific type like 'string', 'number', or 'bool'.", "module", module, "function", decl.Name, "arg", arg.Name)
		}
		if !arg.Type.Type().Equals(goArg.Type()) || types.IsOptional(arg.Type) != types.IsOptional(goArg) {
			errs = append(errs, fmt.Sprintf("%s, argument %d ('%s'): type mismatch. Manifest requires '%s' but Go registers '%s'",
				where, i, arg.Name, arg.Type.FriendlyName(), goArg.FriendlyName()))
		}
	}
	return errs
}
