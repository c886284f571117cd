// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the declared shape of a module and the logic for decoding
// it from a single HCL file.
package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/nativebridge/internal/ctxlog"
	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/types"
)

// Module is the declared contract of one native module.
type Module struct {
	Name        string
	Description string
	// File is the manifest the module was declared in.
	File      string
	Functions []*Function
}

// Function returns the declared function called name.
func (m *Module) Function(name string) (*Function, bool) {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Function is the declared signature of one exported function.
type Function struct {
	Name        string
	Description string
	Kind        function.Kind
	Args        []Arg
	DefRange    hcl.Range
}

// Arg is one declared positional argument.
type Arg struct {
	Name        string
	Description string
	Type        types.Descriptor
}

// rootSchema defines the top-level structure of a manifest file.
type rootSchema struct {
	Modules []*hclModule `hcl:"module,block"`
}

type hclModule struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Functions   []*hclFunction `hcl:"function,block"`
}

type hclFunction struct {
	Name        string    `hcl:"name,label"`
	Description string    `hcl:"description,optional"`
	Async       bool      `hcl:"async,optional"`
	Args        []*hclArg `hcl:"arg,block"`
	DefRange    hcl.Range `hcl:",def_range"`
}

type hclArg struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,attr"`
	Description string         `hcl:"description,optional"`
}

// ParseFile decodes the module blocks of an already parsed HCL file.
func ParseFile(ctx context.Context, file *hcl.File, filePath string) ([]*Module, hcl.Diagnostics) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing module manifests from file", "file_path", filePath)

	if file == nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "HCL file is nil",
		}}
	}

	root := &rootSchema{}
	diags := gohcl.DecodeBody(file.Body, nil, root)
	if diags.HasErrors() {
		return nil, diags
	}

	modules := make([]*Module, 0, len(root.Modules))
	for _, hm := range root.Modules {
		m, modDiags := decodeModule(hm, filePath)
		diags = append(diags, modDiags...)
		if m != nil {
			modules = append(modules, m)
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	logger.Debug("Successfully parsed module manifests", "count", len(modules))
	return modules, diags
}

// Parse parses and decodes manifest source held in memory.
func Parse(ctx context.Context, src []byte, filename string) ([]*Module, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	modules, diags := ParseFile(ctx, file, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	return modules, nil
}

func decodeModule(hm *hclModule, filePath string) (*Module, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	m := &Module{
		Name:        hm.Name,
		Description: hm.Description,
		File:        filePath,
		Functions:   make([]*Function, 0, len(hm.Functions)),
	}

	seen := make(map[string]struct{}, len(hm.Functions))
	for _, hf := range hm.Functions {
		if _, exists := seen[hf.Name]; exists {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate function definition",
				Detail:   fmt.Sprintf("Module '%s' already declares a function named '%s'.", hm.Name, hf.Name),
				Subject:  hf.DefRange.Ptr(),
			})
			continue
		}
		seen[hf.Name] = struct{}{}

		fn, fnDiags := decodeFunction(hf)
		diags = append(diags, fnDiags...)
		if fn != nil {
			m.Functions = append(m.Functions, fn)
		}
	}
	return m, diags
}

func decodeFunction(hf *hclFunction) (*Function, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	fn := &Function{
		Name:        hf.Name,
		Description: hf.Description,
		Kind:        function.Sync,
		Args:        make([]Arg, 0, len(hf.Args)),
		DefRange:    hf.DefRange,
	}
	if hf.Async {
		fn.Kind = function.Async
	}

	seen := make(map[string]struct{}, len(hf.Args))
	for _, ha := range hf.Args {
		if _, exists := seen[ha.Name]; exists {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate argument definition",
				Detail:   fmt.Sprintf("An argument named '%s' has already been defined.", ha.Name),
				Subject:  ha.Type.Range().Ptr(),
			})
			continue
		}
		seen[ha.Name] = struct{}{}

		d, err := types.FromExpr(ha.Type)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid argument type",
				Detail:   fmt.Sprintf("Argument '%s' of function '%s': %v.", ha.Name, hf.Name, err),
				Subject:  ha.Type.Range().Ptr(),
			})
			continue
		}
		fn.Args = append(fn.Args, Arg{Name: ha.Name, Description: ha.Description, Type: d})
	}
	if diags.HasErrors() {
		return nil, diags
	}
	return fn, diags
}
