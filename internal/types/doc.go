// Package types defines Type Descriptors: immutable capability values that
// validate one untyped argument supplied by a calling environment and convert
// it into the representation a native function body expects.
//
// Every descriptor carries the cty.Type it accepts, so signatures declared in
// Go can be compared against signatures declared in HCL manifests. Primitive
// coercion follows cty's conversion rules (for example the string "5" is a
// valid number, "x" is not). Composite descriptors (List, Set, Map, Object,
// Optional) are built from nested descriptors and recurse without a depth
// limit.
//
// Descriptors never check arity; that is the dispatcher's job.
package types
