package types

import (
	"errors"
	"fmt"
)

// ErrTypeMismatch is matched by every *MismatchError.
var ErrTypeMismatch = errors.New("type mismatch")

// MismatchError reports a raw value whose shape is not accepted by a
// descriptor. Path locates the offending element inside a composite value and
// is empty for a top-level mismatch.
type MismatchError struct {
	Path     string
	Expected string
	Actual   string
	Err      error
}

func (e *MismatchError) Error() string {
	msg := fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying conversion error, if any.
func (e *MismatchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTypeMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func mismatch(d Descriptor, raw any, cause error) *MismatchError {
	actual := ShapeOf(raw)
	if errors.Is(cause, ErrCyclicValue) {
		actual = "cyclic value"
	}
	return &MismatchError{Expected: d.FriendlyName(), Actual: actual, Err: cause}
}

// within prefixes the path of a nested mismatch with the element that
// contained it.
func within(err error, step string) error {
	var me *MismatchError
	if !errors.As(err, &me) {
		return err
	}
	nested := *me
	switch {
	case nested.Path == "":
		nested.Path = step
	case nested.Path[0] == '[':
		nested.Path = step + nested.Path
	default:
		nested.Path = step + "." + nested.Path
	}
	return &nested
}
