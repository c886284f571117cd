// Package function defines Function Descriptors: the immutable binding of a
// name, an argument signature and a body, tagged with the protocol used to
// call that body.
package function

import (
	"context"
	"fmt"

	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/promise"
	"github.com/vk/nativebridge/internal/types"
)

// Kind selects the invocation protocol of a function.
type Kind int

const (
	// Sync bodies return their result to the caller directly.
	Sync Kind = iota
	// Async bodies complete through a promise, possibly after returning.
	Async
)

func (k Kind) String() string {
	switch k {
	case Sync:
		return "sync"
	case Async:
		return "async"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps "sync" and "async" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "sync":
		return Sync, nil
	case "async":
		return Async, nil
	default:
		return 0, fmt.Errorf("unknown function kind %q", s)
	}
}

// SyncBody is the calling convention of a Sync function. args holds one
// converted value per declared argument.
type SyncBody func(ctx context.Context, h *holder.Holder, args []any) (any, error)

// AsyncBody is the calling convention of an Async function. The body must
// eventually settle p exactly once, on any goroutine.
type AsyncBody func(ctx context.Context, h *holder.Holder, args []any, p *promise.Promise)

// Function is a registered, immutable function descriptor.
type Function struct {
	name  string
	args  []types.Descriptor
	kind  Kind
	sync  SyncBody
	async AsyncBody
}

// NewSync describes a synchronous function. It panics on an empty name or a
// nil body or argument descriptor.
func NewSync(name string, args []types.Descriptor, body SyncBody) *Function {
	if body == nil {
		panic(fmt.Sprintf("function %q: nil sync body", name))
	}
	return newFunction(name, args, Sync, body, nil)
}

// NewAsync describes an asynchronous function. It panics on an empty name or
// a nil body or argument descriptor.
func NewAsync(name string, args []types.Descriptor, body AsyncBody) *Function {
	if body == nil {
		panic(fmt.Sprintf("function %q: nil async body", name))
	}
	return newFunction(name, args, Async, nil, body)
}

func newFunction(name string, args []types.Descriptor, kind Kind, s SyncBody, a AsyncBody) *Function {
	if name == "" {
		panic("function name must not be empty")
	}
	for i, d := range args {
		if d == nil {
			panic(fmt.Sprintf("function %q: nil descriptor for argument %d", name, i))
		}
	}
	copied := make([]types.Descriptor, len(args))
	copy(copied, args)
	return &Function{name: name, args: copied, kind: kind, sync: s, async: a}
}

// Name returns the function's name.
func (f *Function) Name() string { return f.name }

// Kind returns the invocation protocol.
func (f *Function) Kind() Kind { return f.kind }

// Arity returns the number of declared arguments.
func (f *Function) Arity() int { return len(f.args) }

// Arg returns the descriptor of the i-th argument.
func (f *Function) Arg(i int) types.Descriptor { return f.args[i] }

// Signature returns a copy of the declared argument descriptors.
func (f *Function) Signature() []types.Descriptor {
	out := make([]types.Descriptor, len(f.args))
	copy(out, f.args)
	return out
}

// SyncBody returns the body of a Sync function, or nil.
func (f *Function) SyncBody() SyncBody { return f.sync }

// AsyncBody returns the body of an Async function, or nil.
func (f *Function) AsyncBody() AsyncBody { return f.async }

// Info is the discovery metadata a host uses to build its own calling
// convention for a function.
type Info struct {
	Name  string
	Arity int
	Kind  Kind
	Args  []string
}

// Info returns the function's discovery metadata.
func (f *Function) Info() Info {
	names := make([]string, len(f.args))
	for i, d := range f.args {
		names[i] = d.FriendlyName()
	}
	return Info{Name: f.name, Arity: len(f.args), Kind: f.kind, Args: names}
}
