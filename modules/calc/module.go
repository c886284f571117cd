// Package calc provides arithmetic functions. It is the smallest module and
// doubles as a worked example of sync registration.
package calc

import (
	"context"
	"errors"

	"github.com/vk/nativebridge/internal/function"
	"github.com/vk/nativebridge/internal/holder"
	"github.com/vk/nativebridge/internal/types"
)

// ErrDivideByZero is returned by divide when the divisor is zero.
var ErrDivideByZero = errors.New("division by zero")

// Module implements the registry.Module interface for this package.
type Module struct{}

// Name returns the module's registered name.
func (m *Module) Name() string { return "calc" }

// Functions returns the descriptors exported by calc.
func (m *Module) Functions() []*function.Function {
	pair := []types.Descriptor{types.Number, types.Number}
	return []*function.Function{
		function.NewSync("add", pair, add),
		function.NewSync("divide", pair, divide),
		function.NewSync("sum", []types.Descriptor{types.List(types.Number)}, sum),
	}
}

func add(_ context.Context, _ *holder.Holder, args []any) (any, error) {
	return args[0].(float64) + args[1].(float64), nil
}

func divide(_ context.Context, _ *holder.Holder, args []any) (any, error) {
	b := args[1].(float64)
	if b == 0 {
		return nil, ErrDivideByZero
	}
	return args[0].(float64) / b, nil
}

func sum(_ context.Context, _ *holder.Holder, args []any) (any, error) {
	var total float64
	for _, v := range args[0].([]any) {
		total += v.(float64)
	}
	return total, nil
}
