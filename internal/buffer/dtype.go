// Package buffer provides typed data buffers over heap, off-heap, external and
// workspace-scoped memory.
package buffer

import (
	"fmt"
	"reflect"
	"strings"
)

// DataType identifies the element type stored in a buffer.
type DataType int

// Supported data types. Unknown is the zero value and is never valid.
const (
	Unknown DataType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Half
	BFloat16
	Float
	Double
	UTF8
	UTF16
	UTF32
)

// DataTypes lists every valid data type in declaration order.
var DataTypes = []DataType{
	Bool, Int8, Int16, Int32, Int64,
	Uint8, Uint16, Uint32, Uint64,
	Half, BFloat16, Float, Double,
	UTF8, UTF16, UTF32,
}

// Size returns the element width in bytes. For string types it is the width
// of one code unit.
func (dt DataType) Size() int {
	switch dt {
	case Bool, Int8, Uint8, UTF8:
		return 1
	case Int16, Uint16, Half, BFloat16, UTF16:
		return 2
	case Int32, Uint32, Float, UTF32:
		return 4
	case Int64, Uint64, Double:
		return 8
	default:
		return 0
	}
}

// String returns the canonical lower-case name of the data type.
func (dt DataType) String() string {
	switch dt {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Half:
		return "half"
	case BFloat16:
		return "bfloat16"
	case Float:
		return "float"
	case Double:
		return "double"
	case UTF8:
		return "utf8"
	case UTF16:
		return "utf16"
	case UTF32:
		return "utf32"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// Valid reports whether dt is one of the supported data types.
func (dt DataType) Valid() bool {
	return dt >= Bool && dt <= UTF32
}

// IsString reports whether dt is one of the UTF encodings.
func (dt DataType) IsString() bool {
	return dt == UTF8 || dt == UTF16 || dt == UTF32
}

// IsNumeric reports whether dt holds numbers or booleans.
func (dt DataType) IsNumeric() bool {
	return dt.Valid() && !dt.IsString()
}

// IsFloatingPoint reports whether dt is a floating point type.
func (dt DataType) IsFloatingPoint() bool {
	return dt == Half || dt == BFloat16 || dt == Float || dt == Double
}

// IsInteger reports whether dt is a signed or unsigned integer type.
func (dt DataType) IsInteger() bool {
	switch dt {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsSigned reports whether dt can represent negative values.
func (dt DataType) IsSigned() bool {
	switch dt {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return dt.IsFloatingPoint()
}

// dataTypeAliases maps ND4J names onto the canonical data types.
var dataTypeAliases = map[string]DataType{
	"byte":    Int8,
	"ubyte":   Uint8,
	"short":   Int16,
	"int":     Int32,
	"long":    Int64,
	"float16": Half,
	"float32": Float,
	"float64": Double,
	"boolean": Bool,
}

// ParseDataType parses a canonical name or a known alias.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, dt := range DataTypes {
		if dt.String() == name {
			return dt, nil
		}
	}
	if dt, ok := dataTypeAliases[name]; ok {
		return dt, nil
	}
	return Unknown, fmt.Errorf("unknown data type %q", s)
}

// Element is a constraint for Go types that map directly onto a numeric DataType.
type Element interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// DataTypeOf returns the DataType that stores values of T.
// Named types resolve through their underlying kind.
func DataTypeOf[T Element]() DataType {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Uint8:
		return Uint8
	case reflect.Uint16:
		return Uint16
	case reflect.Uint32:
		return Uint32
	case reflect.Uint64:
		return Uint64
	case reflect.Float32:
		return Float
	case reflect.Float64:
		return Double
	default:
		return Unknown
	}
}
