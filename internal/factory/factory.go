// Package factory builds typed buffers for a backend.
//
// Each operation first consults the coverage table, failing fast with a
// *buffer.UnsupportedTypeError that names the operation and the data type,
// then dispatches on the data type to the matching constructor.
package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/born-ml/ndbuf/internal/buffer"
	"github.com/born-ml/ndbuf/internal/envconfig"
	"github.com/born-ml/ndbuf/internal/workspace"
)

// ErrNoWorkspace is returned when a workspace operation gets a nil workspace.
var ErrNoWorkspace = errors.New("no workspace given")

// Factory creates buffers. It is safe for concurrent use.
type Factory struct {
	backend Backend

	mu   sync.RWMutex
	mode buffer.AllocationMode
	set  bool
}

// New returns a factory for backend. The allocation mode defaults to NDBUF_ALLOC.
func New(backend Backend) *Factory {
	return &Factory{backend: backend}
}

// Backend returns the backend the factory builds for.
func (f *Factory) Backend() Backend {
	return f.backend
}

// SetAllocationMode sets the mode of buffers built from a length.
// Only Heap and Direct can be chosen; the other modes follow from how a buffer is created.
func (f *Factory) SetAllocationMode(mode buffer.AllocationMode) error {
	if mode != buffer.Heap && mode != buffer.Direct {
		return fmt.Errorf("allocation mode %s cannot be a factory default", mode)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode, f.set = mode, true
	return nil
}

// AllocationMode returns the mode of buffers built from a length.
func (f *Factory) AllocationMode() buffer.AllocationMode {
	f.mu.RLock()
	mode, set := f.mode, f.set
	f.mu.RUnlock()
	if set {
		return mode
	}
	mode, err := buffer.ParseAllocationMode(envconfig.AllocMode())
	if err != nil {
		return buffer.Heap
	}
	return mode
}

// unsupported builds and logs the error for a type an operation does not cover.
func (f *Factory) unsupported(op Operation, dtype buffer.DataType) error {
	err := &buffer.UnsupportedTypeError{Op: string(op), Type: dtype}
	slog.Debug("buffer factory rejected request", "op", op, "dtype", dtype, "backend", f.backend.Name)
	return err
}

func (f *Factory) check(op Operation, dtype buffer.DataType) error {
	if !Supports(op, dtype) {
		return f.unsupported(op, dtype)
	}
	return nil
}

// checkHalf rejects data-initialized half precision on backends without it.
func (f *Factory) checkHalf(op Operation, dtype buffer.DataType) error {
	if dtype == buffer.Half && !f.backend.HalfPrecision {
		slog.Debug("buffer factory rejected request", "op", op, "dtype", dtype, "backend", f.backend.Name)
		return fmt.Errorf("%s: %w: %s has no %s support", op, buffer.ErrUnsupportedForBackend, f.backend.Name, dtype)
	}
	return nil
}

// allocate builds a zeroed numeric buffer in the factory's allocation mode.
func (f *Factory) allocate(dtype buffer.DataType, length int) (*buffer.Buffer, error) {
	if f.AllocationMode() == buffer.Direct {
		return buffer.NewDirect(dtype, length)
	}
	return buffer.NewHeap(dtype, length)
}

// Create builds a buffer of length elements. Heap and direct memory always
// start zeroed, so initialize only matters for workspace buffers. UTF types
// produce length empty strings.
func (f *Factory) Create(dtype buffer.DataType, length int, initialize bool) (*buffer.Buffer, error) {
	if err := f.check(OpCreate, dtype); err != nil {
		return nil, err
	}
	switch dtype {
	case buffer.Bool, buffer.Int8, buffer.Int16, buffer.Int32, buffer.Int64,
		buffer.Uint8, buffer.Uint16, buffer.Uint32, buffer.Uint64,
		buffer.Half, buffer.BFloat16, buffer.Float, buffer.Double:
		return f.allocate(dtype, length)
	case buffer.UTF8, buffer.UTF16, buffer.UTF32:
		if length < 0 {
			return nil, fmt.Errorf("%s: %w: %d", OpCreate, buffer.ErrInvalidLength, length)
		}
		return buffer.NewStrings(dtype, make([]string, length))
	}
	return nil, f.unsupported(OpCreate, dtype)
}

// CreateHalf builds a Half buffer. Allocation is allowed on every backend.
func (f *Factory) CreateHalf(length int, initialize bool) (*buffer.Buffer, error) {
	return f.Create(buffer.Half, length, initialize)
}

// CreateInWorkspace builds a numeric buffer on memory from ws. The buffer is
// valid until ws is reset or closed; access after that returns
// buffer.ErrStaleBuffer. Without initialize the contents are whatever the
// previous workspace cycle left behind.
func (f *Factory) CreateInWorkspace(dtype buffer.DataType, length int, initialize bool, ws *workspace.Workspace) (*buffer.Buffer, error) {
	if err := f.check(OpCreateInWorkspace, dtype); err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("%s: %w", OpCreateInWorkspace, ErrNoWorkspace)
	}
	if length < 0 {
		return nil, fmt.Errorf("%s: %w: %d", OpCreateInWorkspace, buffer.ErrInvalidLength, length)
	}
	region, err := ws.Alloc(length * dtype.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpCreateInWorkspace, err)
	}
	if initialize {
		clear(region.Data)
	}
	return buffer.NewInArena(region.Data, dtype, length, ws, region.Generation)
}

// CreateView returns a buffer aliasing elements [offset, offset+length) of
// underlying. No data is copied.
func (f *Factory) CreateView(underlying *buffer.Buffer, offset, length int) (*buffer.Buffer, error) {
	if underlying == nil {
		return nil, fmt.Errorf("%s: nil underlying buffer", OpCreateView)
	}
	if err := f.check(OpCreateView, underlying.DataType()); err != nil {
		return nil, err
	}
	return underlying.View(offset, length)
}

// CreateFromBytes aliases data holding length elements starting at element
// offset. UTF8 data must be in the UTF buffer layout; offset and length then
// count strings.
func (f *Factory) CreateFromBytes(data []byte, dtype buffer.DataType, length, offset int) (*buffer.Buffer, error) {
	if err := f.check(OpCreateFromBytes, dtype); err != nil {
		return nil, err
	}
	switch dtype {
	case buffer.UTF8:
		return buffer.WrapStrings(data, dtype, length, offset, nil)
	default:
		return buffer.Wrap(data, dtype, length, offset, nil)
	}
}

// CreateFromPointer aliases length elements at ptr. The caller owns the memory.
func (f *Factory) CreateFromPointer(ptr unsafe.Pointer, dtype buffer.DataType, length int) (*buffer.Buffer, error) {
	if err := f.check(OpCreateFromPointer, dtype); err != nil {
		return nil, err
	}
	return buffer.WrapPointer(ptr, dtype, length)
}

// CreateSame builds a buffer with the type and length of buf. Contents are not copied.
func (f *Factory) CreateSame(buf buffer.DataBuffer, initialize bool) (*buffer.Buffer, error) {
	if err := f.check(OpCreateSame, buf.DataType()); err != nil {
		return nil, err
	}
	return f.Create(buf.DataType(), buf.Length(), initialize)
}

// CreateSameInWorkspace builds a buffer with the type and length of buf in ws.
func (f *Factory) CreateSameInWorkspace(buf buffer.DataBuffer, initialize bool, ws *workspace.Workspace) (*buffer.Buffer, error) {
	if err := f.check(OpCreateSameInWorkspace, buf.DataType()); err != nil {
		return nil, err
	}
	return f.CreateInWorkspace(buf.DataType(), buf.Length(), initialize, ws)
}

// CreateStrings encodes data into a UTF8, UTF16 or UTF32 buffer.
func (f *Factory) CreateStrings(data []string, dtype buffer.DataType) (*buffer.Buffer, error) {
	if err := f.check(OpCreateStrings, dtype); err != nil {
		return nil, err
	}
	return buffer.NewStrings(dtype, data)
}

// CreateFrom builds a numeric buffer holding data converted to dtype.
func (f *Factory) CreateFrom(dtype buffer.DataType, data []float64) (*buffer.Buffer, error) {
	if err := f.check(OpCreateFrom, dtype); err != nil {
		return nil, err
	}
	if err := f.checkHalf(OpCreateFrom, dtype); err != nil {
		return nil, err
	}
	buf, err := f.allocate(dtype, len(data))
	if err != nil {
		return nil, err
	}
	if err := buf.SetFloat64s(data); err != nil {
		_ = buf.Close()
		return nil, err
	}
	return buf, nil
}

// CreateFromInts builds a numeric buffer holding data converted to dtype.
// Integer targets keep full 64-bit precision.
func (f *Factory) CreateFromInts(dtype buffer.DataType, data []int64) (*buffer.Buffer, error) {
	if err := f.check(OpCreateFrom, dtype); err != nil {
		return nil, err
	}
	if err := f.checkHalf(OpCreateFrom, dtype); err != nil {
		return nil, err
	}
	buf, err := f.allocate(dtype, len(data))
	if err != nil {
		return nil, err
	}
	if err := buf.SetInt64s(data); err != nil {
		_ = buf.Close()
		return nil, err
	}
	return buf, nil
}

// CreateHalfFrom builds a Half buffer from data. It fails with
// buffer.ErrUnsupportedForBackend on backends without half precision.
func (f *Factory) CreateHalfFrom(data []float32) (*buffer.Buffer, error) {
	values := make([]float64, len(data))
	for i, v := range data {
		values[i] = float64(v)
	}
	return f.CreateFrom(buffer.Half, values)
}

// FromSlice builds a buffer of the native data type of T. With copyData the
// buffer owns a copy in the factory's allocation mode; otherwise it aliases
// data in Pointer mode and data must outlive it.
func FromSlice[T buffer.Element](f *Factory, data []T, copyData bool) (*buffer.Buffer, error) {
	dtype := buffer.DataTypeOf[T]()
	if err := f.check(OpCreateFrom, dtype); err != nil {
		return nil, err
	}
	var raw []byte
	if len(data) > 0 {
		//nolint:gosec // reinterpret the slice's backing array, length derived from len(data)
		raw = unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*dtype.Size())
	}
	if !copyData {
		return buffer.Wrap(raw, dtype, len(data), 0, nil)
	}
	buf, err := f.allocate(dtype, len(data))
	if err != nil {
		return nil, err
	}
	dst, err := buf.Bytes()
	if err != nil {
		return nil, err
	}
	copy(dst, raw)
	return buf, nil
}
