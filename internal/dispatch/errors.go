package dispatch

import (
	"errors"
	"fmt"

	"github.com/vk/nativebridge/internal/types"
)

var (
	// ErrFunctionNotFound is returned when no descriptor is registered under
	// the requested module and function names.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrModuleUnavailable is returned when the descriptor exists but its
	// module instance has been torn down.
	ErrModuleUnavailable = errors.New("module unavailable")
	// ErrHolderMismatch is returned when a call names one module but carries
	// the holder of another.
	ErrHolderMismatch = errors.New("holder belongs to another module")
	// ErrArityMismatch matches every *ArityError.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrTypeMismatch matches every *ArgumentError.
	ErrTypeMismatch = errors.New("argument type mismatch")
)

// NotFoundError reports a call to a name that was never registered.
// Suggestion names the closest registered function, if any.
type NotFoundError struct {
	Module     string
	Function   string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s.%s: %v", e.Module, e.Function, ErrFunctionNotFound)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", e.Suggestion)
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrFunctionNotFound }

// ArityError reports a call whose argument count differs from the declared
// signature.
type ArityError struct {
	Module   string
	Function string
	Want     int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s.%s: expected %d argument(s), got %d", e.Module, e.Function, e.Want, e.Got)
}

func (e *ArityError) Is(target error) bool { return target == ErrArityMismatch }

// ArgumentError reports the first argument that failed conversion. Position
// is zero-based.
type ArgumentError struct {
	Module   string
	Function string
	Position int
	Err      error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s.%s: argument %d: %v", e.Module, e.Function, e.Position, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func (e *ArgumentError) Is(target error) bool { return target == ErrTypeMismatch }

// Mismatch returns the expected and actual shapes of the failed conversion.
func (e *ArgumentError) Mismatch() (*types.MismatchError, bool) {
	var me *types.MismatchError
	ok := errors.As(e.Err, &me)
	return me, ok
}

// PanicError wraps a panic raised by a function body.
type PanicError struct {
	Module   string
	Function string
	Value    any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s.%s: panic: %v", e.Module, e.Function, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
