package types

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	// ErrCyclicValue is returned for a host value that contains itself.
	ErrCyclicValue = errors.New("value contains itself")
	// ErrUnusableValue is returned for a cty.Value that is unknown, marked or
	// invalid and so cannot be read.
	ErrUnusableValue = errors.New("cty value is not usable as an argument")
)

// FromRaw converts an untyped host value into a cty.Value. Slices and arrays
// become tuples and string-keyed maps become objects, so element types are
// only fixed later by the descriptor doing the conversion.
func FromRaw(raw any) (cty.Value, error) {
	return fromRaw(raw, make(map[visit]struct{}))
}

// visit identifies a map, slice or pointer on the path being converted.
// Slices sharing a backing array differ by length.
type visit struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// enter records rv on the current path and returns the func that removes
// it again. Shared values that are not cycles are entered more than once.
func enter(seen map[visit]struct{}, rv reflect.Value) (func(), error) {
	key := visit{typ: rv.Type(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		key.len = rv.Len()
	}
	if _, ok := seen[key]; ok {
		return nil, ErrCyclicValue
	}
	seen[key] = struct{}{}
	return func() { delete(seen, key) }, nil
}

func checkCty(v cty.Value) error {
	switch {
	case v.Type() == cty.NilType:
		return fmt.Errorf("%w: invalid value", ErrUnusableValue)
	case v.ContainsMarked():
		return fmt.Errorf("%w: value is marked", ErrUnusableValue)
	case !v.IsWhollyKnown():
		return fmt.Errorf("%w: value is unknown", ErrUnusableValue)
	}
	return nil
}

func fromRaw(raw any, seen map[visit]struct{}) (cty.Value, error) {
	if raw == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	if v, ok := raw.(cty.Value); ok {
		if err := checkCty(v); err != nil {
			return cty.NilVal, err
		}
		return v, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Bool:
		return cty.BoolVal(rv.Bool()), nil
	case reflect.String:
		return cty.StringVal(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cty.NumberUIntVal(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return cty.NilVal, fmt.Errorf("%v is not a finite number", f)
		}
		return cty.NumberFloatVal(f), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		leave, err := enter(seen, rv)
		if err != nil {
			return cty.NilVal, err
		}
		defer leave()
		return fromRaw(rv.Elem().Interface(), seen)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		if rv.Len() == 0 {
			return cty.EmptyTupleVal, nil
		}
		if rv.Kind() == reflect.Slice {
			leave, err := enter(seen, rv)
			if err != nil {
				return cty.NilVal, err
			}
			defer leave()
		}
		elems := make([]cty.Value, rv.Len())
		for i := range elems {
			v, err := fromRaw(rv.Index(i).Interface(), seen)
			if err != nil {
				return cty.NilVal, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = v
		}
		return cty.TupleVal(elems), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return cty.NilVal, fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		if rv.Len() == 0 {
			return cty.EmptyObjectVal, nil
		}
		leave, err := enter(seen, rv)
		if err != nil {
			return cty.NilVal, err
		}
		defer leave()
		attrs := make(map[string]cty.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			v, err := fromRaw(iter.Value().Interface(), seen)
			if err != nil {
				return cty.NilVal, fmt.Errorf("%s: %w", k, err)
			}
			attrs[k] = v
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported Go type %T", raw)
	}
}

// ToNative recursively converts a cty.Value to its most natural Go
// counterpart: float64 for numbers, []any for sequences and map[string]any for
// objects and maps. Null and unknown values become nil.
func ToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert cty.Number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported cty type for conversion: %s", ty.FriendlyName())
	}
}

// ShapeOf names the shape of a raw value for diagnostics.
func ShapeOf(raw any) string {
	if raw == nil {
		return "null"
	}
	if v, ok := raw.(cty.Value); ok {
		if v.IsNull() {
			return "null"
		}
		return v.Type().FriendlyName()
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "object"
	case reflect.Pointer:
		seen := make(map[uintptr]struct{})
		for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
			if rv.IsNil() {
				return "null"
			}
			if rv.Kind() == reflect.Pointer {
				if _, ok := seen[rv.Pointer()]; ok {
					return "cyclic value"
				}
				seen[rv.Pointer()] = struct{}{}
			}
			rv = rv.Elem()
		}
		return ShapeOf(rv.Interface())
	default:
		return fmt.Sprintf("unsupported Go type %T", raw)
	}
}

// sequence returns the elements of a raw list value.
func sequence(raw any) ([]any, bool) {
	if v, ok := raw.([]any); ok {
		return v, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// record returns the attributes of a raw object value.
func record(raw any) (map[string]any, bool) {
	if v, ok := raw.(map[string]any); ok {
		return v, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// unwrap turns a cty.Value argument into a plain Go value so composite
// descriptors can walk it like any other host value.
func unwrap(raw any) (any, error) {
	if v, ok := raw.(cty.Value); ok {
		if err := checkCty(v); err != nil {
			return nil, err
		}
		return ToNative(v)
	}
	return raw, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
