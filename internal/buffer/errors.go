package buffer

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnsupportedType       = errors.New("unsupported data type")
	ErrUnsupportedForBackend = errors.New("unsupported for this backend")
	ErrTypeMismatch          = errors.New("data type mismatch")
	ErrIndexOutOfRange       = errors.New("index out of range")
	ErrBufferClosed          = errors.New("buffer is closed")
	ErrStaleBuffer           = errors.New("buffer outlived its workspace generation")
	ErrInvalidLength         = errors.New("invalid buffer length")
	ErrWorkspaceView         = errors.New("no unscoped views of workspace memory")
	ErrInvalidBool           = errors.New("bool element is neither 0 nor 1")
)

// UnsupportedTypeError reports a data type that an operation does not cover.
type UnsupportedTypeError struct {
	Op   string   // Operation name (e.g. "CreateInWorkspace")
	Type DataType // Offending data type
}

// Error implements the error interface.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: unsupported data type %s", e.Op, e.Type)
}

// Unwrap returns ErrUnsupportedType so callers can use errors.Is.
func (e *UnsupportedTypeError) Unwrap() error {
	return ErrUnsupportedType
}

// IndexError reports an element index outside [0, Length).
type IndexError struct {
	Index  int
	Length int
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Length)
}

// Unwrap returns ErrIndexOutOfRange.
func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}

func typeMismatch(op string, got, want DataType) error {
	return fmt.Errorf("%w: %s on %s buffer, want %s", ErrTypeMismatch, op, got, want)
}
