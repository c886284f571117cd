// This file contains the logic for parsing HCL type expressions (e.g., `string`,
// `list(number)`, `object({ url = string })`) into descriptors.

package types

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Parse parses a type expression written in HCL syntax.
func Parse(src string) (Descriptor, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "<type>", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid type expression %q: %w", src, diags)
	}
	return FromExpr(expr)
}

// FromExpr converts an already-parsed HCL type expression into a descriptor.
// A nil expression means `any`.
func FromExpr(expr hcl.Expression) (Descriptor, error) {
	if expr == nil {
		return Any, nil
	}

	switch v := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		if len(v.Args) != 1 {
			return nil, fmt.Errorf("type constructor %q requires exactly one argument, got %d", v.Name, len(v.Args))
		}
		if v.Name == "object" {
			return objectFromExpr(v.Args[0])
		}

		inner, err := FromExpr(v.Args[0])
		if err != nil {
			return nil, err
		}
		switch v.Name {
		case "list":
			return List(inner), nil
		case "set":
			return Set(inner), nil
		case "map":
			return Map(inner), nil
		case "optional":
			return Optional(inner), nil
		default:
			return nil, fmt.Errorf("unknown type constructor %q", v.Name)
		}

	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return nil, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		switch name := v.Traversal.RootName(); name {
		case "string":
			return String, nil
		case "number":
			return Number, nil
		case "bool":
			return Bool, nil
		case "any":
			return Any, nil
		default:
			return nil, fmt.Errorf("unknown primitive type %q", name)
		}

	default:
		return nil, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}

func objectFromExpr(expr hcl.Expression) (Descriptor, error) {
	cons, ok := expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return nil, fmt.Errorf("object type constructor requires an object literal, got %T", expr)
	}
	attrs := make(map[string]Descriptor, len(cons.Items))
	for _, item := range cons.Items {
		name := hcl.ExprAsKeyword(item.KeyExpr)
		if name == "" {
			return nil, fmt.Errorf("object type attribute names must be identifiers")
		}
		if _, dup := attrs[name]; dup {
			return nil, fmt.Errorf("duplicate object type attribute %q", name)
		}
		d, err := FromExpr(item.ValueExpr)
		if err != nil {
			return nil, fmt.Errorf("in attribute %q: %w", name, err)
		}
		attrs[name] = d
	}
	return Object(attrs), nil
}
