package buffer

import (
	"fmt"

	"github.com/born-ml/ndbuf/internal/parallel"
)

// Assign sets every element to v.
func (b *Buffer) Assign(v float64) error {
	data, err := b.elements("Assign")
	if err != nil {
		return err
	}
	size := b.dtype.Size()
	if b.length == 0 {
		return nil
	}
	// Encode once, then replicate the element bytes.
	putFloat64(b.dtype, data[:size], v)
	parallel.ForRange(b.length-1, func(start, end int) {
		for i := start + 1; i <= end; i++ {
			copy(data[i*size:(i+1)*size], data[:size])
		}
	}, parallel.DefaultConfig())
	return nil
}

// SetFloat64s stores values starting at element 0, converting each to the element type.
func (b *Buffer) SetFloat64s(values []float64) error {
	data, err := b.elements("SetFloat64s")
	if err != nil {
		return err
	}
	if len(values) > b.length {
		return fmt.Errorf("SetFloat64s: %w: %d values into %d elements", ErrInvalidLength, len(values), b.length)
	}
	if b.dtype == BFloat16 {
		f32 := make([]float32, len(values))
		for i, v := range values {
			f32[i] = float32(v)
		}
		copy(data, bfloat16Encode(f32))
		return nil
	}
	size := b.dtype.Size()
	parallel.ForRange(len(values), func(start, end int) {
		for i := start; i < end; i++ {
			putFloat64(b.dtype, data[i*size:], values[i])
		}
	}, parallel.DefaultConfig())
	return nil
}

// SetInt64s stores values starting at element 0, converting each to the element type.
func (b *Buffer) SetInt64s(values []int64) error {
	data, err := b.elements("SetInt64s")
	if err != nil {
		return err
	}
	if len(values) > b.length {
		return fmt.Errorf("SetInt64s: %w: %d values into %d elements", ErrInvalidLength, len(values), b.length)
	}
	size := b.dtype.Size()
	parallel.ForRange(len(values), func(start, end int) {
		for i := start; i < end; i++ {
			putInt64(b.dtype, data[i*size:], values[i])
		}
	}, parallel.DefaultConfig())
	return nil
}

// CopyFrom copies src into b element by element, converting between types.
// Both buffers must be numeric and have the same length.
func (b *Buffer) CopyFrom(src *Buffer) error {
	if src.length != b.length {
		return fmt.Errorf("CopyFrom: %w: source has %d elements, destination %d", ErrInvalidLength, src.length, b.length)
	}
	dst, err := b.elements("CopyFrom")
	if err != nil {
		return err
	}
	from, err := src.elements("CopyFrom")
	if err != nil {
		return err
	}
	if src.dtype == b.dtype {
		copy(dst, from)
		return nil
	}

	dsize, ssize := b.dtype.Size(), src.dtype.Size()
	intOnly := integerPath(src.dtype, b.dtype)
	parallel.ForRange(b.length, func(start, end int) {
		for i := start; i < end; i++ {
			if intOnly {
				putInt64(b.dtype, dst[i*dsize:], getInt64(src.dtype, from[i*ssize:]))
			} else {
				putFloat64(b.dtype, dst[i*dsize:], getFloat64(src.dtype, from[i*ssize:]))
			}
		}
	}, parallel.DefaultConfig())
	return nil
}

// Dup returns a heap copy of b with the same type, length and contents.
func (b *Buffer) Dup() (*Buffer, error) {
	if b.dtype.IsString() {
		values, err := b.Strings()
		if err != nil {
			return nil, err
		}
		return NewStrings(b.dtype, values)
	}
	out, err := NewHeap(b.dtype, b.length)
	if err != nil {
		return nil, err
	}
	if err := out.CopyFrom(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Cast returns a heap copy of b converted to dtype.
func (b *Buffer) Cast(dtype DataType) (*Buffer, error) {
	out, err := NewHeap(dtype, b.length)
	if err != nil {
		return nil, err
	}
	if err := out.CopyFrom(b); err != nil {
		return nil, err
	}
	return out, nil
}
