package factory

import (
	"github.com/born-ml/ndbuf/internal/buffer"
)

// Operation names a factory entry point. It appears in unsupported-type errors.
type Operation string

// Factory operations.
const (
	OpCreate                Operation = "Create"
	OpCreateInWorkspace     Operation = "CreateInWorkspace"
	OpCreateView            Operation = "CreateView"
	OpCreateFromBytes       Operation = "CreateFromBytes"
	OpCreateFromPointer     Operation = "CreateFromPointer"
	OpCreateStrings         Operation = "CreateStrings"
	OpCreateFrom            Operation = "CreateFrom"
	OpCreateSame            Operation = "CreateSame"
	OpCreateSameInWorkspace Operation = "CreateSameInWorkspace"
)

// Operations lists every operation in table order.
var Operations = []Operation{
	OpCreate,
	OpCreateInWorkspace,
	OpCreateView,
	OpCreateFromBytes,
	OpCreateFromPointer,
	OpCreateStrings,
	OpCreateFrom,
	OpCreateSame,
	OpCreateSameInWorkspace,
}

func numericOrUTF8(dt buffer.DataType) bool {
	return dt.IsNumeric() || dt == buffer.UTF8
}

// coverage is the dispatch table: which data types each operation can build.
var coverage = map[Operation]func(buffer.DataType) bool{
	OpCreate:                buffer.DataType.Valid,
	OpCreateInWorkspace:     buffer.DataType.IsNumeric,
	OpCreateView:            numericOrUTF8,
	OpCreateFromBytes:       numericOrUTF8,
	OpCreateFromPointer:     buffer.DataType.IsNumeric,
	OpCreateStrings:         buffer.DataType.IsString,
	OpCreateFrom:            buffer.DataType.IsNumeric,
	OpCreateSame:            buffer.DataType.Valid,
	OpCreateSameInWorkspace: buffer.DataType.IsNumeric,
}

// Supports reports whether op can build buffers of dtype.
func Supports(op Operation, dtype buffer.DataType) bool {
	covers, ok := coverage[op]
	return ok && covers(dtype)
}

// Supports reports whether the factory can build buffers of dtype with op on
// its backend. Unlike the package-level Supports it accounts for half
// precision support when creating from data.
func (f *Factory) Supports(op Operation, dtype buffer.DataType) bool {
	if !Supports(op, dtype) {
		return false
	}
	return op != OpCreateFrom || dtype != buffer.Half || f.backend.HalfPrecision
}
