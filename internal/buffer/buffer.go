package buffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// DataBuffer is the interface shared by every buffer regardless of element
// type or allocation mode.
type DataBuffer interface {
	DataType() DataType
	Length() int
	ElementSize() int
	ByteSize() int
	AllocationMode() AllocationMode
	Offset() int
	IsView() bool
	Validate() error
	Close() error
}

// Buffer is a typed view over a reference-counted storage region.
//
// Numeric accessors convert between the stored element type and the accessor
// type. Views created with View share storage with their parent; Close on a
// view releases only the view's reference.
//
// A Buffer is not safe for concurrent writes. Concurrent reads are fine.
type Buffer struct {
	store  *storage
	dtype  DataType
	offset int // In elements for numeric types, in strings for UTF types
	length int
	view   bool
	closed atomic.Bool

	payloadSize int // Encoded bytes of the covered strings, UTF buffers only
}

var _ DataBuffer = (*Buffer)(nil)

func checkNumeric(op string, dtype DataType, length int) error {
	if !dtype.IsNumeric() {
		return &UnsupportedTypeError{Op: op, Type: dtype}
	}
	if length < 0 {
		return fmt.Errorf("%s: %w: %d", op, ErrInvalidLength, length)
	}
	return nil
}

// NewHeap allocates a zeroed numeric buffer on the Go heap.
func NewHeap(dtype DataType, length int) (*Buffer, error) {
	if err := checkNumeric("NewHeap", dtype, length); err != nil {
		return nil, err
	}
	return &Buffer{
		store:  newStorage(make([]byte, length*dtype.Size()), Heap, nil),
		dtype:  dtype,
		length: length,
	}, nil
}

// NewDirect allocates a zeroed numeric buffer outside the Go heap.
// The memory is released when the buffer and all of its views are closed.
func NewDirect(dtype DataType, length int) (*Buffer, error) {
	if err := checkNumeric("NewDirect", dtype, length); err != nil {
		return nil, err
	}
	data, free, err := AllocDirect(length * dtype.Size())
	if err != nil {
		return nil, fmt.Errorf("allocate %d direct bytes: %w", length*dtype.Size(), err)
	}
	return &Buffer{
		store:  newStorage(data, Direct, free),
		dtype:  dtype,
		length: length,
	}, nil
}

// Wrap aliases externally owned memory. The buffer covers elements
// [offset, offset+length) of data. free, if non-nil, runs once the last
// reference is closed.
func Wrap(data []byte, dtype DataType, length, offset int, free func([]byte) error) (*Buffer, error) {
	if err := checkNumeric("Wrap", dtype, length); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("Wrap: negative offset %d", offset)
	}
	if need := (offset + length) * dtype.Size(); need > len(data) {
		return nil, fmt.Errorf("Wrap: %w: %d %s elements at offset %d need %d bytes, have %d",
			ErrInvalidLength, length, dtype, offset, need, len(data))
	}
	return &Buffer{
		store:  newStorage(data, Pointer, free),
		dtype:  dtype,
		offset: offset,
		length: length,
	}, nil
}

// WrapPointer aliases length elements starting at ptr.
// The caller keeps ownership and must keep the memory alive while the buffer is used.
func WrapPointer(ptr unsafe.Pointer, dtype DataType, length int) (*Buffer, error) {
	if err := checkNumeric("WrapPointer", dtype, length); err != nil {
		return nil, err
	}
	if ptr == nil && length > 0 {
		return nil, fmt.Errorf("WrapPointer: nil pointer for %d elements", length)
	}
	var data []byte
	if length > 0 {
		data = unsafe.Slice((*byte)(ptr), length*dtype.Size())
	}
	return Wrap(data, dtype, length, 0, nil)
}

// NewInArena places a numeric buffer on memory handed out by an arena under
// the given generation. Every access verifies the generation is still live.
func NewInArena(data []byte, dtype DataType, length int, arena Arena, generation uint64) (*Buffer, error) {
	if err := checkNumeric("NewInArena", dtype, length); err != nil {
		return nil, err
	}
	if arena == nil {
		return nil, fmt.Errorf("NewInArena: nil arena")
	}
	if need := length * dtype.Size(); need > len(data) {
		return nil, fmt.Errorf("NewInArena: %w: need %d bytes, region has %d", ErrInvalidLength, need, len(data))
	}
	s := newStorage(data, Workspace, nil)
	s.arena = arena
	s.generation = generation
	return &Buffer{store: s, dtype: dtype, length: length}, nil
}

// DataType returns the element type.
func (b *Buffer) DataType() DataType { return b.dtype }

// Length returns the number of elements (strings for UTF buffers).
func (b *Buffer) Length() int { return b.length }

// ElementSize returns the element width in bytes.
func (b *Buffer) ElementSize() int { return b.dtype.Size() }

// Offset returns the element offset into the shared storage.
func (b *Buffer) Offset() int { return b.offset }

// IsView reports whether the buffer was created as a view of another buffer.
func (b *Buffer) IsView() bool { return b.view }

// AllocationMode returns where the storage lives.
func (b *Buffer) AllocationMode() AllocationMode { return b.store.mode }

// ByteSize returns the number of bytes covered by this buffer. For UTF
// buffers it includes the offset table of the covered strings.
func (b *Buffer) ByteSize() int {
	if b.dtype.IsString() {
		return b.stringByteSize()
	}
	return b.length * b.dtype.Size()
}

// Validate returns nil if the buffer may still be accessed.
func (b *Buffer) Validate() error {
	_, err := b.live()
	return err
}

// Close releases this handle's reference to the storage. Closing twice is a no-op.
func (b *Buffer) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.store.release()
}

// SameStorage reports whether two buffers alias the same memory.
func (b *Buffer) SameStorage(other *Buffer) bool {
	return other != nil && b.store == other.store
}

func (b *Buffer) live() ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrBufferClosed
	}
	return b.store.bytes()
}

// View returns a buffer aliasing elements [offset, offset+length) of b.
func (b *Buffer) View(offset, length int) (*Buffer, error) {
	if offset < 0 || length < 0 || offset+length > b.length {
		return nil, fmt.Errorf("View: %w: [%d, %d) of %d", ErrIndexOutOfRange, offset, offset+length, b.length)
	}
	data, err := b.live()
	if err != nil {
		return nil, err
	}
	b.store.addRef()
	v := &Buffer{
		store:  b.store,
		dtype:  b.dtype,
		offset: b.offset + offset,
		length: length,
		view:   true,
	}
	if b.dtype.IsString() {
		start, end := v.stringSpan(data, v.offset, v.offset+length)
		v.payloadSize = end - start
	}
	return v, nil
}

// element returns the bytes of element i.
func (b *Buffer) element(op string, i int) ([]byte, error) {
	if !b.dtype.IsNumeric() {
		return nil, fmt.Errorf("%w: %s on %s buffer", ErrTypeMismatch, op, b.dtype)
	}
	if i < 0 || i >= b.length {
		return nil, &IndexError{Index: i, Length: b.length}
	}
	data, err := b.live()
	if err != nil {
		return nil, err
	}
	size := b.dtype.Size()
	start := (b.offset + i) * size
	return data[start : start+size], nil
}

// elements returns the bytes covered by a numeric buffer.
func (b *Buffer) elements(op string) ([]byte, error) {
	if !b.dtype.IsNumeric() {
		return nil, fmt.Errorf("%w: %s on %s buffer", ErrTypeMismatch, op, b.dtype)
	}
	data, err := b.live()
	if err != nil {
		return nil, err
	}
	size := b.dtype.Size()
	return data[b.offset*size : (b.offset+b.length)*size], nil
}

// Float64 returns element i converted to float64.
func (b *Buffer) Float64(i int) (float64, error) {
	p, err := b.element("Float64", i)
	if err != nil {
		return 0, err
	}
	return getFloat64(b.dtype, p), nil
}

// SetFloat64 stores v at element i, converting to the element type.
func (b *Buffer) SetFloat64(i int, v float64) error {
	p, err := b.element("SetFloat64", i)
	if err != nil {
		return err
	}
	putFloat64(b.dtype, p, v)
	return nil
}

// Float32 returns element i converted to float32.
func (b *Buffer) Float32(i int) (float32, error) {
	v, err := b.Float64(i)
	return float32(v), err
}

// SetFloat32 stores v at element i.
func (b *Buffer) SetFloat32(i int, v float32) error {
	return b.SetFloat64(i, float64(v))
}

// Int64 returns element i converted to int64.
func (b *Buffer) Int64(i int) (int64, error) {
	p, err := b.element("Int64", i)
	if err != nil {
		return 0, err
	}
	return getInt64(b.dtype, p), nil
}

// SetInt64 stores v at element i.
func (b *Buffer) SetInt64(i int, v int64) error {
	p, err := b.element("SetInt64", i)
	if err != nil {
		return err
	}
	putInt64(b.dtype, p, v)
	return nil
}

// Int32 returns element i converted to int32.
func (b *Buffer) Int32(i int) (int32, error) {
	v, err := b.Int64(i)
	return int32(v), err
}

// SetInt32 stores v at element i.
func (b *Buffer) SetInt32(i int, v int32) error {
	return b.SetInt64(i, int64(v))
}

// Bool returns whether element i is non-zero.
func (b *Buffer) Bool(i int) (bool, error) {
	v, err := b.Float64(i)
	return v != 0, err
}

// SetBool stores 1 or 0 at element i.
func (b *Buffer) SetBool(i int, v bool) error {
	return b.SetInt64(i, int64(boolByte(v)))
}

// Float64s returns a converted copy of all elements.
func (b *Buffer) Float64s() ([]float64, error) {
	data, err := b.elements("Float64s")
	if err != nil {
		return nil, err
	}
	size := b.dtype.Size()
	out := make([]float64, b.length)
	for i := range out {
		out[i] = getFloat64(b.dtype, data[i*size:])
	}
	return out, nil
}

// Float32s returns a converted copy of all elements.
func (b *Buffer) Float32s() ([]float32, error) {
	data, err := b.elements("Float32s")
	if err != nil {
		return nil, err
	}
	if b.dtype == BFloat16 {
		return bfloat16Decode(data), nil
	}
	size := b.dtype.Size()
	out := make([]float32, b.length)
	for i := range out {
		out[i] = float32(getFloat64(b.dtype, data[i*size:]))
	}
	return out, nil
}

// Int64s returns a converted copy of all elements.
func (b *Buffer) Int64s() ([]int64, error) {
	data, err := b.elements("Int64s")
	if err != nil {
		return nil, err
	}
	size := b.dtype.Size()
	out := make([]int64, b.length)
	for i := range out {
		out[i] = getInt64(b.dtype, data[i*size:])
	}
	return out, nil
}

// Int32s returns a converted copy of all elements.
func (b *Buffer) Int32s() ([]int32, error) {
	data, err := b.elements("Int32s")
	if err != nil {
		return nil, err
	}
	size := b.dtype.Size()
	out := make([]int32, b.length)
	for i := range out {
		out[i] = int32(getInt64(b.dtype, data[i*size:]))
	}
	return out, nil
}

// unscoped rejects raw slices over workspace memory: a slice cannot be
// invalidated when the workspace resets. Use WithBytes or WithSlice instead.
func (b *Buffer) unscoped(op string) error {
	if b.store.arena != nil {
		return fmt.Errorf("%s: %w: use WithBytes or WithSlice", op, ErrWorkspaceView)
	}
	return nil
}

// rawBytes returns the covered bytes without the workspace restriction.
func (b *Buffer) rawBytes() ([]byte, error) {
	if b.dtype.IsString() {
		return b.payload()
	}
	return b.elements("Bytes")
}

// Bytes returns the raw bytes covered by the buffer without copying.
// For UTF buffers this is the encoded payload of the covered strings.
//
// The slice aliases the storage and must not be used after Close: Direct and
// mapped memory is unmapped once the last reference goes. Workspace buffers
// return ErrWorkspaceView.
func (b *Buffer) Bytes() ([]byte, error) {
	if err := b.unscoped("Bytes"); err != nil {
		return nil, err
	}
	return b.rawBytes()
}

// WithBytes calls fn with the raw bytes covered by the buffer. It works for
// every allocation mode. The buffer's liveness is checked before and after
// fn, so a workspace reset during fn is reported as ErrStaleBuffer. The slice
// must not be retained after fn returns.
func (b *Buffer) WithBytes(fn func(data []byte) error) error {
	data, err := b.rawBytes()
	if err != nil {
		return err
	}
	if err := fn(data); err != nil {
		return err
	}
	return b.Validate()
}

func checkBools(op string, data []byte) error {
	for i, v := range data {
		if v > 1 {
			return fmt.Errorf("%s: %w: element %d is %#x", op, ErrInvalidBool, i, v)
		}
	}
	return nil
}

// sliceOf reinterprets the covered bytes as []T. Elements are little-endian.
func sliceOf[T any](b *Buffer, want DataType, op string) ([]T, error) {
	if b.dtype != want {
		return nil, typeMismatch(op, b.dtype, want)
	}
	data, err := b.elements(op)
	if err != nil {
		return nil, err
	}
	if want == Bool {
		if err := checkBools(op, data); err != nil {
			return nil, err
		}
	}
	if b.length == 0 {
		return []T{}, nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by elements()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), b.length), nil
}

func asSlice[T any](b *Buffer, want DataType) ([]T, error) {
	op := "As" + want.String()
	if err := b.unscoped(op); err != nil {
		return nil, err
	}
	return sliceOf[T](b, want, op)
}

// WithSlice calls fn with a zero-copy []T view of b, which must hold the
// native data type of T. Like WithBytes it works on workspace buffers and
// reports a reset during fn as ErrStaleBuffer. The slice must not be
// retained after fn returns.
func WithSlice[T Element](b *Buffer, fn func(values []T) error) error {
	values, err := sliceOf[T](b, DataTypeOf[T](), "WithSlice")
	if err != nil {
		return err
	}
	if err := fn(values); err != nil {
		return err
	}
	return b.Validate()
}

// AsFloat64 returns a zero-copy []float64 view of a Double buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsFloat64() ([]float64, error) { return asSlice[float64](b, Double) }

// AsFloat32 returns a zero-copy []float32 view of a Float buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsFloat32() ([]float32, error) { return asSlice[float32](b, Float) }

// AsInt64 returns a zero-copy []int64 view of an Int64 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsInt64() ([]int64, error) { return asSlice[int64](b, Int64) }

// AsInt32 returns a zero-copy []int32 view of an Int32 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsInt32() ([]int32, error) { return asSlice[int32](b, Int32) }

// AsInt16 returns a zero-copy []int16 view of an Int16 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsInt16() ([]int16, error) { return asSlice[int16](b, Int16) }

// AsInt8 returns a zero-copy []int8 view of an Int8 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsInt8() ([]int8, error) { return asSlice[int8](b, Int8) }

// AsUint64 returns a zero-copy []uint64 view of a Uint64 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsUint64() ([]uint64, error) { return asSlice[uint64](b, Uint64) }

// AsUint32 returns a zero-copy []uint32 view of a Uint32 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsUint32() ([]uint32, error) { return asSlice[uint32](b, Uint32) }

// AsUint16 returns a zero-copy []uint16 view of a Uint16 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsUint16() ([]uint16, error) { return asSlice[uint16](b, Uint16) }

// AsUint8 returns a zero-copy []uint8 view of a Uint8 buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
func (b *Buffer) AsUint8() ([]uint8, error) { return asSlice[uint8](b, Uint8) }

// AsBool returns a zero-copy []bool view of a Bool buffer.
// The slice must not outlive Close. Workspace buffers return ErrWorkspaceView.
// Wrapped memory holding bytes other than 0 and 1 fails with ErrInvalidBool.
func (b *Buffer) AsBool() ([]bool, error) { return asSlice[bool](b, Bool) }

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(%s, length=%d, mode=%s)", b.dtype, b.length, b.store.mode)
}
