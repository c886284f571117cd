// Package catalog renders the functions a registry exposes, merged with the
// descriptions from their manifests, as a YAML document.
package catalog

import (
	"fmt"
	"io"

	"github.com/vk/nativebridge/internal/manifest"
	"github.com/vk/nativebridge/internal/registry"
	"gopkg.in/yaml.v3"
)

// Catalog lists modules in registration order.
type Catalog struct {
	Modules []Module `yaml:"modules"`
}

// Module is one registered module.
type Module struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Functions   []Function `yaml:"functions"`
}

// Function is one registered function.
type Function struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Description string `yaml:"description,omitempty"`
	Args        []Arg  `yaml:"args,omitempty"`
}

// Arg is one declared argument. Name falls back to argN when the module has
// no manifest.
type Arg struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

// Build describes every module in reg. model may be nil.
func Build(reg *registry.Registry, model *manifest.Model) *Catalog {
	c := &Catalog{Modules: []Module{}}
	for _, name := range reg.Enumerate() {
		infos, _ := reg.Describe(name)

		var decl *manifest.Module
		if model != nil {
			decl = model.Modules[name]
		}

		mod := Module{Name: name, Functions: make([]Function, 0, len(infos))}
		if decl != nil {
			mod.Description = decl.Description
		}

		for _, info := range infos {
			fn := Function{Name: info.Name, Kind: info.Kind.String()}
			var declFn *manifest.Function
			if decl != nil {
				declFn, _ = decl.Function(info.Name)
			}
			if declFn != nil {
				fn.Description = declFn.Description
			}
			for i, typ := range info.Args {
				arg := Arg{Name: fmt.Sprintf("arg%d", i), Type: typ}
				if declFn != nil && i < len(declFn.Args) {
					arg.Name = declFn.Args[i].Name
					arg.Description = declFn.Args[i].Description
				}
				fn.Args = append(fn.Args, arg)
			}
			mod.Functions = append(mod.Functions, fn)
		}
		c.Modules = append(c.Modules, mod)
	}
	return c
}

// WriteYAML encodes c to w with two-space indentation.
func (c *Catalog) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return enc.Close()
}
