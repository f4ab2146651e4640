// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package factory builds typed buffers for a backend.
//
// Every operation checks that it covers the requested data type and fails
// with a *buffer.UnsupportedTypeError naming both otherwise. Creating Half
// buffers from data needs a backend with half precision support.
//
// Example:
//
//	f := factory.New(factory.CPU)
//	buf, err := f.CreateFrom(buffer.Double, []float64{1, 2, 3})
//	view, err := f.CreateView(buf, 1, 2) // shares storage with buf
package factory

import (
	"github.com/born-ml/ndbuf/buffer"
	"github.com/born-ml/ndbuf/internal/factory"
)

// Factory creates buffers.
type Factory = factory.Factory

// Backend describes the capabilities of a memory backend.
type Backend = factory.Backend

// Operation names a factory entry point.
type Operation = factory.Operation

// Known backends.
var (
	CPU  = factory.CPU
	CUDA = factory.CUDA
)

// Operations.
const (
	OpCreate                = factory.OpCreate
	OpCreateInWorkspace     = factory.OpCreateInWorkspace
	OpCreateView            = factory.OpCreateView
	OpCreateFromBytes       = factory.OpCreateFromBytes
	OpCreateFromPointer     = factory.OpCreateFromPointer
	OpCreateStrings         = factory.OpCreateStrings
	OpCreateFrom            = factory.OpCreateFrom
	OpCreateSame            = factory.OpCreateSame
	OpCreateSameInWorkspace = factory.OpCreateSameInWorkspace
)

// ErrNoWorkspace is returned when a workspace operation gets a nil workspace.
var ErrNoWorkspace = factory.ErrNoWorkspace

// New returns a factory for backend.
func New(backend Backend) *Factory { return factory.New(backend) }

// ParseBackend returns the known backend with the given name.
func ParseBackend(name string) (Backend, error) { return factory.ParseBackend(name) }

// Supports reports whether op covers dtype on any backend.
func Supports(op Operation, dtype buffer.DataType) bool { return factory.Supports(op, dtype) }

// FromSlice builds a buffer of the native data type of T, copying data or aliasing it.
func FromSlice[T buffer.Element](f *Factory, data []T, copyData bool) (*buffer.Buffer, error) {
	return factory.FromSlice(f, data, copyData)
}
