// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package buffer provides typed data buffers.
//
// A Buffer holds elements of one DataType on storage that lives on the Go
// heap, outside it (Direct), in memory owned by someone else (Pointer) or in a
// workspace arena (Workspace). Views alias the storage of the buffer they are
// made from. Numeric elements are little-endian; UTF buffers hold strings.
//
// Example:
//
//	buf, err := buffer.NewHeap(buffer.Float, 4)
//	if err != nil {
//	    return err
//	}
//	defer buf.Close()
//	_ = buf.Assign(1.5)
//	values, _ := buf.AsFloat32() // zero-copy []float32
package buffer

import (
	"unsafe"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// DataType identifies the element type of a buffer.
type DataType = buffer.DataType

// Data type constants.
const (
	Unknown  DataType = buffer.Unknown
	Bool     DataType = buffer.Bool
	Int8     DataType = buffer.Int8
	Int16    DataType = buffer.Int16
	Int32    DataType = buffer.Int32
	Int64    DataType = buffer.Int64
	Uint8    DataType = buffer.Uint8
	Uint16   DataType = buffer.Uint16
	Uint32   DataType = buffer.Uint32
	Uint64   DataType = buffer.Uint64
	Half     DataType = buffer.Half
	BFloat16 DataType = buffer.BFloat16
	Float    DataType = buffer.Float
	Double   DataType = buffer.Double
	UTF8     DataType = buffer.UTF8
	UTF16    DataType = buffer.UTF16
	UTF32    DataType = buffer.UTF32
)

// AllocationMode describes where a buffer's storage lives.
type AllocationMode = buffer.AllocationMode

// Allocation modes.
const (
	Heap      AllocationMode = buffer.Heap
	Direct    AllocationMode = buffer.Direct
	Pointer   AllocationMode = buffer.Pointer
	Workspace AllocationMode = buffer.Workspace
)

// Buffer is a typed buffer. See the internal documentation of each accessor.
type Buffer = buffer.Buffer

// DataBuffer is the interface every buffer satisfies.
type DataBuffer = buffer.DataBuffer

// Summary holds descriptive statistics of a numeric buffer.
type Summary = buffer.Summary

// Element is a constraint for Go types that map onto a numeric DataType.
type Element = buffer.Element

// UnsupportedTypeError names the operation and the data type it cannot handle.
type UnsupportedTypeError = buffer.UnsupportedTypeError

// IndexError reports an out-of-range element index.
type IndexError = buffer.IndexError

// Errors.
var (
	ErrUnsupportedType       = buffer.ErrUnsupportedType
	ErrUnsupportedForBackend = buffer.ErrUnsupportedForBackend
	ErrTypeMismatch          = buffer.ErrTypeMismatch
	ErrIndexOutOfRange       = buffer.ErrIndexOutOfRange
	ErrBufferClosed          = buffer.ErrBufferClosed
	ErrStaleBuffer           = buffer.ErrStaleBuffer
	ErrInvalidLength         = buffer.ErrInvalidLength
	ErrWorkspaceView         = buffer.ErrWorkspaceView
	ErrInvalidBool           = buffer.ErrInvalidBool
)

// DataTypes lists every valid data type.
var DataTypes = buffer.DataTypes

// ParseDataType parses a data type name or alias such as "float32" or "long".
func ParseDataType(s string) (DataType, error) { return buffer.ParseDataType(s) }

// ParseAllocationMode parses an allocation mode name.
func ParseAllocationMode(s string) (AllocationMode, error) { return buffer.ParseAllocationMode(s) }

// DataTypeOf returns the DataType that stores values of T.
func DataTypeOf[T Element]() DataType { return buffer.DataTypeOf[T]() }

// WithSlice calls fn with a zero-copy []T view of b, checking b's liveness
// before and after. The slice must not be retained after fn returns.
func WithSlice[T Element](b *Buffer, fn func(values []T) error) error {
	return buffer.WithSlice(b, fn)
}

// NewHeap allocates a zeroed numeric buffer on the Go heap.
func NewHeap(dtype DataType, length int) (*Buffer, error) { return buffer.NewHeap(dtype, length) }

// NewDirect allocates a zeroed numeric buffer outside the Go heap.
func NewDirect(dtype DataType, length int) (*Buffer, error) { return buffer.NewDirect(dtype, length) }

// NewStrings encodes values into a UTF8, UTF16 or UTF32 buffer.
func NewStrings(dtype DataType, values []string) (*Buffer, error) {
	return buffer.NewStrings(dtype, values)
}

// Wrap aliases elements [offset, offset+length) of data.
func Wrap(data []byte, dtype DataType, length, offset int) (*Buffer, error) {
	return buffer.Wrap(data, dtype, length, offset, nil)
}

// WrapPointer aliases length elements at ptr. The caller owns the memory.
func WrapPointer(ptr unsafe.Pointer, dtype DataType, length int) (*Buffer, error) {
	return buffer.WrapPointer(ptr, dtype, length)
}

// WrapStrings aliases data holding the UTF buffer layout.
func WrapStrings(data []byte, dtype DataType, length, offset int) (*Buffer, error) {
	return buffer.WrapStrings(data, dtype, length, offset, nil)
}

// EncodeStrings returns values in the UTF buffer layout.
func EncodeStrings(dtype DataType, values []string) ([]byte, error) {
	return buffer.EncodeStrings(dtype, values)
}
