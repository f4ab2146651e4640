package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrOffsetOverlap      = errors.New("buffer offsets overlap")
	ErrOutOfBounds        = errors.New("buffer extends beyond data section")
	ErrNegativeOffset     = errors.New("negative offset or size")
	ErrTooManyBuffers     = errors.New("too many buffers in file")
	ErrBufferNameTooLong  = errors.New("buffer name too long")
	ErrInvalidBufferName  = errors.New("invalid buffer name")
	ErrInvalidBufferMeta  = errors.New("invalid buffer metadata")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrBufferNotFound     = errors.New("buffer not found")
	ErrClosed             = errors.New("file is closed")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Kind of failure, e.g. "offset_overlap"
	Buffer  string // Primary buffer name involved
	Buffer2 string // Secondary buffer name, for overlaps and duplicates
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Buffer2 != "" {
		return fmt.Sprintf("%s: buffers %q and %q: %s", e.Type, e.Buffer, e.Buffer2, e.Details)
	}
	if e.Buffer != "" {
		return fmt.Sprintf("%s: buffer %q: %s", e.Type, e.Buffer, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap maps the failure kind to its sentinel error.
func (e *ValidationError) Unwrap() error {
	switch e.Type {
	case "offset_overlap":
		return ErrOffsetOverlap
	case "out_of_bounds":
		return ErrOutOfBounds
	case "negative_offset":
		return ErrNegativeOffset
	case "too_many_buffers":
		return ErrTooManyBuffers
	case "name_too_long":
		return ErrBufferNameTooLong
	case "invalid_name", "duplicate_name":
		return ErrInvalidBufferName
	case "invalid_meta":
		return ErrInvalidBufferMeta
	default:
		return nil
	}
}
