package buffer

import (
	"encoding/binary"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Element codecs. All buffers store elements little-endian; p starts at the element.

func getFloat64(dt DataType, p []byte) float64 {
	switch dt {
	case Bool, Uint8:
		return float64(p[0])
	case Int8:
		return float64(int8(p[0]))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(p)))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(p))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(p)))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(p))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(p)))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(p))
	case Half:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(p)).Float32())
	case BFloat16:
		return float64(bfloat16.DecodeFloat32(p[:2])[0])
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	}
	panic("buffer: float codec on " + dt.String())
}

func putFloat64(dt DataType, p []byte, v float64) {
	switch dt {
	case Bool:
		p[0] = boolByte(v != 0)
	case Uint8:
		p[0] = uint8(v)
	case Int8:
		p[0] = byte(int8(v))
	case Int16:
		binary.LittleEndian.PutUint16(p, uint16(int16(v)))
	case Uint16:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case Int32:
		binary.LittleEndian.PutUint32(p, uint32(int32(v)))
	case Uint32:
		binary.LittleEndian.PutUint32(p, uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(p, uint64(int64(v)))
	case Uint64:
		binary.LittleEndian.PutUint64(p, uint64(v))
	case Half:
		binary.LittleEndian.PutUint16(p, float16.Fromfloat32(float32(v)).Bits())
	case BFloat16:
		copy(p[:2], bfloat16.EncodeFloat32([]float32{float32(v)}))
	case Float:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case Double:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic("buffer: float codec on " + dt.String())
	}
}

// getInt64 reads integers without a round trip through float64 so that
// 64-bit values keep full precision.
func getInt64(dt DataType, p []byte) int64 {
	switch dt {
	case Bool, Uint8:
		return int64(p[0])
	case Int8:
		return int64(int8(p[0]))
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(p)))
	case Uint16:
		return int64(binary.LittleEndian.Uint16(p))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(p)))
	case Uint32:
		return int64(binary.LittleEndian.Uint32(p))
	case Int64, Uint64:
		return int64(binary.LittleEndian.Uint64(p))
	default:
		return int64(getFloat64(dt, p))
	}
}

func putInt64(dt DataType, p []byte, v int64) {
	switch dt {
	case Bool:
		p[0] = boolByte(v != 0)
	case Uint8, Int8:
		p[0] = byte(v)
	case Int16, Uint16:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case Int32, Uint32:
		binary.LittleEndian.PutUint32(p, uint32(v))
	case Int64, Uint64:
		binary.LittleEndian.PutUint64(p, uint64(v))
	default:
		putFloat64(dt, p, float64(v))
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// integerPath reports whether a conversion between two types can stay in int64.
func integerPath(a, b DataType) bool {
	return (a.IsInteger() || a == Bool) && (b.IsInteger() || b == Bool)
}

func bfloat16Decode(data []byte) []float32 {
	return bfloat16.DecodeFloat32(data)
}

func bfloat16Encode(values []float32) []byte {
	return bfloat16.EncodeFloat32(values)
}
