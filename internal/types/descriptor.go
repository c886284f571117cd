package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Descriptor validates a single raw argument and converts it into the value a
// function body receives.
type Descriptor interface {
	// Convert returns the converted value or a *MismatchError.
	Convert(raw any) (any, error)
	// Type is the cty type constraint the descriptor accepts.
	Type() cty.Type
	// FriendlyName is the human-readable type name used in diagnostics.
	FriendlyName() string
}

var errNull = errors.New("a non-null value is required")

// primitive converts through cty to one of the primitive types.
type primitive struct {
	ty   cty.Type
	name string
	out  func(cty.Value) (any, error)
}

var (
	// Number accepts anything cty can convert to a finite float64.
	Number Descriptor = &primitive{ty: cty.Number, name: "number", out: func(v cty.Value) (any, error) {
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil
	}}

	// Int accepts whole numbers and yields int64.
	Int Descriptor = &primitive{ty: cty.Number, name: "whole number", out: func(v cty.Value) (any, error) {
		var i int64
		if err := gocty.FromCtyValue(v, &i); err != nil {
			return nil, err
		}
		return i, nil
	}}

	// String yields string.
	String Descriptor = &primitive{ty: cty.String, name: "string", out: func(v cty.Value) (any, error) {
		return v.AsString(), nil
	}}

	// Bool yields bool.
	Bool Descriptor = &primitive{ty: cty.Bool, name: "bool", out: func(v cty.Value) (any, error) {
		return v.True(), nil
	}}

	// Any accepts every representable value, including null, and yields its
	// native Go form (see ToNative).
	Any Descriptor = anyType{}
)

func (p *primitive) Type() cty.Type       { return p.ty }
func (p *primitive) FriendlyName() string { return p.name }

func (p *primitive) Convert(raw any) (any, error) {
	v, err := FromRaw(raw)
	if err != nil {
		return nil, mismatch(p, raw, err)
	}
	if v.IsNull() {
		return nil, mismatch(p, raw, errNull)
	}
	converted, err := convert.Convert(v, p.ty)
	if err != nil {
		return nil, mismatch(p, raw, err)
	}
	out, err := p.out(converted)
	if err != nil {
		return nil, mismatch(p, raw, err)
	}
	return out, nil
}

type anyType struct{}

func (anyType) Type() cty.Type       { return cty.DynamicPseudoType }
func (anyType) FriendlyName() string { return "any" }

func (a anyType) Convert(raw any) (any, error) {
	v, err := FromRaw(raw)
	if err != nil {
		return nil, mismatch(a, raw, err)
	}
	out, err := ToNative(v)
	if err != nil {
		return nil, mismatch(a, raw, err)
	}
	return out, nil
}

type collection struct {
	kind string
	elem Descriptor
}

// List accepts any sequence whose elements convert with elem and yields []any.
func List(elem Descriptor) Descriptor { return &collection{kind: "list", elem: elem} }

// Set behaves like List but rejects duplicate converted elements.
func Set(elem Descriptor) Descriptor { return &collection{kind: "set", elem: elem} }

// Map accepts any string-keyed object whose values convert with elem and
// yields map[string]any.
func Map(elem Descriptor) Descriptor { return &collection{kind: "map", elem: elem} }

func (c *collection) Type() cty.Type {
	switch c.kind {
	case "set":
		return cty.Set(c.elem.Type())
	case "map":
		return cty.Map(c.elem.Type())
	default:
		return cty.List(c.elem.Type())
	}
}

func (c *collection) FriendlyName() string {
	return fmt.Sprintf("%s(%s)", c.kind, c.elem.FriendlyName())
}

func (c *collection) Convert(raw any) (any, error) {
	raw, err := unwrap(raw)
	if err != nil {
		return nil, mismatch(c, raw, err)
	}
	if raw == nil {
		return nil, mismatch(c, raw, errNull)
	}

	if c.kind == "map" {
		attrs, ok := record(raw)
		if !ok {
			return nil, mismatch(c, raw, nil)
		}
		out := make(map[string]any, len(attrs))
		for _, k := range sortedKeys(attrs) {
			v, err := c.elem.Convert(attrs[k])
			if err != nil {
				return nil, within(err, k)
			}
			out[k] = v
		}
		return out, nil
	}

	elems, ok := sequence(raw)
	if !ok {
		return nil, mismatch(c, raw, nil)
	}
	out := make([]any, 0, len(elems))
	for i, e := range elems {
		v, err := c.elem.Convert(e)
		if err != nil {
			return nil, within(err, fmt.Sprintf("[%d]", i))
		}
		if c.kind == "set" {
			for _, seen := range out {
				if reflect.DeepEqual(seen, v) {
					return nil, within(&MismatchError{Expected: c.FriendlyName(), Actual: "list with duplicates", Err: fmt.Errorf("duplicate element %v", v)}, fmt.Sprintf("[%d]", i))
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

type object struct {
	attrs map[string]Descriptor
}

// Object accepts a string-keyed value with the given attributes. Attributes
// wrapped in Optional may be absent; attributes not listed are ignored. It
// yields map[string]any holding only the declared attributes.
func Object(attrs map[string]Descriptor) Descriptor {
	copied := make(map[string]Descriptor, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &object{attrs: copied}
}

func (o *object) Type() cty.Type {
	attrTypes := make(map[string]cty.Type, len(o.attrs))
	var optAttrs []string
	for name, d := range o.attrs {
		attrTypes[name] = d.Type()
		if IsOptional(d) {
			optAttrs = append(optAttrs, name)
		}
	}
	if len(optAttrs) == 0 {
		return cty.Object(attrTypes)
	}
	return cty.ObjectWithOptionalAttrs(attrTypes, optAttrs)
}

func (o *object) FriendlyName() string {
	parts := make([]string, 0, len(o.attrs))
	for _, name := range sortedKeys(o.attrs) {
		parts = append(parts, name+"="+o.attrs[name].FriendlyName())
	}
	return "object({" + strings.Join(parts, ", ") + "})"
}

func (o *object) Convert(raw any) (any, error) {
	raw, err := unwrap(raw)
	if err != nil {
		return nil, mismatch(o, raw, err)
	}
	if raw == nil {
		return nil, mismatch(o, raw, errNull)
	}
	attrs, ok := record(raw)
	if !ok {
		return nil, mismatch(o, raw, nil)
	}
	out := make(map[string]any, len(o.attrs))
	for _, name := range sortedKeys(o.attrs) {
		v, err := o.attrs[name].Convert(attrs[name])
		if err != nil {
			return nil, within(err, name)
		}
		out[name] = v
	}
	return out, nil
}

type optional struct {
	inner Descriptor
}

// Optional makes inner nullable: a nil (or absent object attribute) converts
// to nil, anything else must satisfy inner.
func Optional(inner Descriptor) Descriptor {
	if IsOptional(inner) {
		return inner
	}
	return &optional{inner: inner}
}

// IsOptional reports whether d was built by Optional.
func IsOptional(d Descriptor) bool {
	_, ok := d.(*optional)
	return ok
}

func (o *optional) Type() cty.Type       { return o.inner.Type() }
func (o *optional) FriendlyName() string { return "optional(" + o.inner.FriendlyName() + ")" }

func (o *optional) Convert(raw any) (any, error) {
	v, err := FromRaw(raw)
	if err == nil && v.IsNull() {
		return nil, nil
	}
	return o.inner.Convert(raw)
}

type goType[T any] struct {
	ty cty.Type
}

// Go returns a descriptor that decodes into a T. The accepted cty type is
// implied from T, so struct fields need `cty:"name"` tags. It panics if no
// cty type can be implied, which is a registration-time programming error.
func Go[T any]() Descriptor {
	var zero T
	ty, err := gocty.ImpliedType(zero)
	if err != nil {
		panic(fmt.Sprintf("types.Go: cannot imply cty type from %T: %v", zero, err))
	}
	return &goType[T]{ty: ty}
}

func (g *goType[T]) Type() cty.Type       { return g.ty }
func (g *goType[T]) FriendlyName() string { return g.ty.FriendlyName() }

func (g *goType[T]) Convert(raw any) (any, error) {
	v, err := FromRaw(raw)
	if err != nil {
		return nil, mismatch(g, raw, err)
	}
	if v.IsNull() {
		return nil, mismatch(g, raw, errNull)
	}
	converted, err := convert.Convert(v, g.ty)
	if err != nil {
		return nil, mismatch(g, raw, err)
	}
	var out T
	if err := gocty.FromCtyValue(converted, &out); err != nil {
		return nil, mismatch(g, raw, err)
	}
	return out, nil
}
