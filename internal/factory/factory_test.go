package factory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ndbuf/internal/buffer"
	"github.com/born-ml/ndbuf/internal/workspace"
)

func newHeapFactory(t *testing.T, backend Backend) *Factory {
	t.Helper()
	f := New(backend)
	require.NoError(t, f.SetAllocationMode(buffer.Heap))
	return f
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.Name(), workspace.Config{InitialSize: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestCreateEveryType(t *testing.T) {
	f := newHeapFactory(t, CPU)

	for _, dt := range buffer.DataTypes {
		t.Run(dt.String(), func(t *testing.T) {
			buf, err := f.Create(dt, 5, true)
			require.NoError(t, err)
			defer buf.Close()

			assert.Equal(t, dt, buf.DataType())
			assert.Equal(t, 5, buf.Length())
			assert.Equal(t, buffer.Heap, buf.AllocationMode())
			if dt.IsNumeric() {
				assert.Equal(t, 5*dt.Size(), buf.ByteSize())
			} else {
				strs, err := buf.Strings()
				require.NoError(t, err)
				assert.Equal(t, make([]string, 5), strs)
			}
		})
	}
}

func TestCreateUnknownType(t *testing.T) {
	f := newHeapFactory(t, CPU)

	_, err := f.Create(buffer.Unknown, 1, false)
	var ute *buffer.UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "Create", ute.Op)
	assert.Equal(t, buffer.Unknown, ute.Type)
	assert.Contains(t, err.Error(), "Create")

	_, err = f.Create(buffer.DataType(42), 1, false)
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)

	_, err = f.Create(buffer.UTF8, -1, false)
	assert.ErrorIs(t, err, buffer.ErrInvalidLength)
}

func TestAllocationModeDefaultsFromEnv(t *testing.T) {
	t.Setenv("NDBUF_ALLOC", "direct")
	f := New(CPU)
	assert.Equal(t, buffer.Direct, f.AllocationMode())

	buf, err := f.Create(buffer.Float, 4, false)
	require.NoError(t, err)
	assert.Equal(t, buffer.Direct, buf.AllocationMode())
	require.NoError(t, buf.Close())

	t.Setenv("NDBUF_ALLOC", "")
	assert.Equal(t, buffer.Heap, f.AllocationMode())

	require.NoError(t, f.SetAllocationMode(buffer.Direct))
	assert.Equal(t, buffer.Direct, f.AllocationMode())
	assert.Error(t, f.SetAllocationMode(buffer.Workspace))
	assert.Error(t, f.SetAllocationMode(buffer.Pointer))
}

func TestCreateInWorkspace(t *testing.T) {
	f := newHeapFactory(t, CPU)
	ws := newTestWorkspace(t)

	buf, err := f.CreateInWorkspace(buffer.Double, 4, true, ws)
	require.NoError(t, err)
	assert.Equal(t, buffer.Workspace, buf.AllocationMode())
	assert.Equal(t, 32, buf.ByteSize())

	require.NoError(t, buf.SetFloat64(3, 2.5))
	v, err := buf.Float64(3)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	require.NoError(t, ws.Reset())

	_, err = buf.Float64(3)
	assert.ErrorIs(t, err, buffer.ErrStaleBuffer)
	assert.ErrorIs(t, buf.SetFloat64(0, 1), buffer.ErrStaleBuffer)
}

func TestWorkspaceBufferCannotLeakIntoNextCycle(t *testing.T) {
	f := newHeapFactory(t, CPU)
	ws := newTestWorkspace(t)

	old, err := f.CreateInWorkspace(buffer.Double, 4, true, ws)
	require.NoError(t, err)
	_, err = old.AsFloat64()
	require.ErrorIs(t, err, buffer.ErrWorkspaceView)

	require.NoError(t, buffer.WithSlice(old, func(values []float64) error {
		values[0] = 1
		return nil
	}))
	require.NoError(t, ws.Reset())

	fresh, err := f.CreateInWorkspace(buffer.Double, 4, true, ws)
	require.NoError(t, err)
	err = buffer.WithSlice(old, func(values []float64) error {
		values[0] = 42
		return nil
	})
	require.ErrorIs(t, err, buffer.ErrStaleBuffer)

	v, err := fresh.Float64(0)
	require.NoError(t, err)
	assert.Zero(t, v, "the next cycle's buffer is untouched")
}

func TestCreateInWorkspaceInitialize(t *testing.T) {
	f := newHeapFactory(t, CPU)
	ws := newTestWorkspace(t)

	first, err := f.CreateInWorkspace(buffer.Int32, 4, true, ws)
	require.NoError(t, err)
	require.NoError(t, first.Assign(7))
	require.NoError(t, ws.Reset())

	dirty, err := f.CreateInWorkspace(buffer.Int32, 4, false, ws)
	require.NoError(t, err)
	got, err := dirty.Int32s()
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 7, 7, 7}, got, "uninitialized workspace memory keeps the previous cycle")
	require.NoError(t, ws.Reset())

	clean, err := f.CreateInWorkspace(buffer.Int32, 4, true, ws)
	require.NoError(t, err)
	got, err = clean.Int32s()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 0}, got)
}

func TestCreateInWorkspaceErrors(t *testing.T) {
	f := newHeapFactory(t, CPU)
	ws := newTestWorkspace(t)

	for _, dt := range []buffer.DataType{buffer.UTF8, buffer.UTF16, buffer.UTF32} {
		_, err := f.CreateInWorkspace(dt, 1, true, ws)
		var ute *buffer.UnsupportedTypeError
		require.ErrorAs(t, err, &ute)
		assert.Equal(t, "CreateInWorkspace", ute.Op)
	}

	_, err := f.CreateInWorkspace(buffer.Float, 1, true, nil)
	assert.ErrorIs(t, err, ErrNoWorkspace)

	require.NoError(t, ws.Close())
	_, err = f.CreateInWorkspace(buffer.Float, 1, true, ws)
	assert.ErrorIs(t, err, workspace.ErrWorkspaceClosed)
}

func TestCreateInWorkspaceSpilled(t *testing.T) {
	f := newHeapFactory(t, CPU)
	ws, err := workspace.New("spill", workspace.Config{InitialSize: 8, MaxSize: 64, Policy: workspace.SpillToHeap})
	require.NoError(t, err)
	defer ws.Close()

	buf, err := f.CreateInWorkspace(buffer.Double, 4, true, ws)
	require.NoError(t, err)
	require.NoError(t, buf.Validate())

	require.NoError(t, ws.Reset())
	assert.ErrorIs(t, buf.Validate(), buffer.ErrStaleBuffer, "spilled buffers follow the generation too")
}

func TestCreateViewAliases(t *testing.T) {
	f := newHeapFactory(t, CPU)

	base, err := f.CreateFrom(buffer.Float, []float64{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)

	view, err := f.CreateView(base, 2, 3)
	require.NoError(t, err)
	assert.True(t, view.SameStorage(base))
	assert.Equal(t, 3, view.Length())
	assert.Equal(t, 12, view.ByteSize())

	require.NoError(t, view.SetFloat32(0, 20))
	v, err := base.Float32(2)
	require.NoError(t, err)
	assert.Equal(t, float32(20), v)

	_, err = f.CreateView(base, 5, 2)
	assert.ErrorIs(t, err, buffer.ErrIndexOutOfRange)
	_, err = f.CreateView(nil, 0, 0)
	assert.Error(t, err)
}

func TestCreateViewStrings(t *testing.T) {
	f := newHeapFactory(t, CPU)

	utf8, err := f.CreateStrings([]string{"a", "b", "c"}, buffer.UTF8)
	require.NoError(t, err)
	view, err := f.CreateView(utf8, 1, 2)
	require.NoError(t, err)
	got, err := view.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	utf16, err := f.CreateStrings([]string{"a"}, buffer.UTF16)
	require.NoError(t, err)
	_, err = f.CreateView(utf16, 0, 1)
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)
}

func TestCreateFromBytes(t *testing.T) {
	f := newHeapFactory(t, CPU)

	raw := make([]byte, 32)
	buf, err := f.CreateFromBytes(raw, buffer.Int64, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, buffer.Pointer, buf.AllocationMode())
	require.NoError(t, buf.SetInt64(0, 1))
	assert.Equal(t, byte(1), raw[8])

	layout, err := buffer.EncodeStrings(buffer.UTF8, []string{"x", "y", "z"})
	require.NoError(t, err)
	strs, err := f.CreateFromBytes(layout, buffer.UTF8, 2, 1)
	require.NoError(t, err)
	got, err := strs.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, got)

	_, err = f.CreateFromBytes(layout, buffer.UTF32, 1, 0)
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)
}

func TestCreateFromPointer(t *testing.T) {
	f := newHeapFactory(t, CPU)

	backing := []float64{1, 2, 3}
	buf, err := f.CreateFromPointer(unsafe.Pointer(&backing[0]), buffer.Double, 3)
	require.NoError(t, err)
	assert.Equal(t, buffer.Pointer, buf.AllocationMode())

	require.NoError(t, buf.SetFloat64(1, 20))
	assert.Equal(t, 20.0, backing[1])

	_, err = f.CreateFromPointer(unsafe.Pointer(&backing[0]), buffer.UTF8, 3)
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)
}

func TestCreateSameCopiesOnlyShape(t *testing.T) {
	f := newHeapFactory(t, CPU)

	src, err := f.CreateFrom(buffer.Uint16, []float64{1, 2, 3})
	require.NoError(t, err)

	same, err := f.CreateSame(src, false)
	require.NoError(t, err)
	assert.Equal(t, buffer.Uint16, same.DataType())
	assert.Equal(t, 3, same.Length())
	assert.False(t, same.SameStorage(src))
	got, err := same.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0}, got)

	strs, err := f.CreateStrings([]string{"a", "b"}, buffer.UTF32)
	require.NoError(t, err)
	sameStrs, err := f.CreateSame(strs, true)
	require.NoError(t, err)
	assert.Equal(t, buffer.UTF32, sameStrs.DataType())
	assert.Equal(t, 2, sameStrs.Length())

	ws := newTestWorkspace(t)
	inWs, err := f.CreateSameInWorkspace(src, true, ws)
	require.NoError(t, err)
	assert.Equal(t, buffer.Workspace, inWs.AllocationMode())
	assert.Equal(t, 3, inWs.Length())

	_, err = f.CreateSameInWorkspace(strs, true, ws)
	var ute *buffer.UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "CreateSameInWorkspace", ute.Op)
	assert.Equal(t, buffer.UTF32, ute.Type)
}

func TestCreateStringsRejectsNumeric(t *testing.T) {
	f := newHeapFactory(t, CPU)
	_, err := f.CreateStrings([]string{"a"}, buffer.Int8)
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)
}

func TestHalfPrecisionOnCPU(t *testing.T) {
	f := newHeapFactory(t, CPU)

	buf, err := f.CreateHalf(4, true)
	require.NoError(t, err, "allocating half storage works everywhere")
	assert.Equal(t, 8, buf.ByteSize())

	_, err = f.CreateHalfFrom([]float32{1, 2})
	assert.ErrorIs(t, err, buffer.ErrUnsupportedForBackend)
	assert.Contains(t, err.Error(), "cpu")

	_, err = f.CreateFrom(buffer.Half, []float64{1})
	assert.ErrorIs(t, err, buffer.ErrUnsupportedForBackend)
	_, err = f.CreateFromInts(buffer.Half, []int64{1})
	assert.ErrorIs(t, err, buffer.ErrUnsupportedForBackend)

	bf, err := f.CreateFrom(buffer.BFloat16, []float64{1.5})
	require.NoError(t, err, "bfloat16 is emulated, not gated")
	v, err := bf.Float32(0)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), v)
}

func TestHalfPrecisionOnCapableBackend(t *testing.T) {
	f := newHeapFactory(t, CUDA)

	buf, err := f.CreateHalfFrom([]float32{0.5, -2, 65504})
	require.NoError(t, err)
	got, err := buf.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -2, 65504}, got)
}

func TestCreateFromInts(t *testing.T) {
	f := newHeapFactory(t, CPU)

	buf, err := f.CreateFromInts(buffer.Int64, []int64{-1, 1 << 62})
	require.NoError(t, err)
	got, err := buf.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, 1 << 62}, got)

	_, err = f.CreateFromInts(buffer.UTF8, []int64{1})
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)
}

func TestFromSlice(t *testing.T) {
	f := newHeapFactory(t, CPU)

	data := []int16{1, 2, 3}
	alias, err := FromSlice(f, data, false)
	require.NoError(t, err)
	assert.Equal(t, buffer.Int16, alias.DataType())
	assert.Equal(t, buffer.Pointer, alias.AllocationMode())

	owned, err := FromSlice(f, data, true)
	require.NoError(t, err)
	assert.Equal(t, buffer.Heap, owned.AllocationMode())

	data[0] = 100
	a, err := alias.Int32(0)
	require.NoError(t, err)
	o, err := owned.Int32(0)
	require.NoError(t, err)
	assert.Equal(t, int32(100), a)
	assert.Equal(t, int32(1), o)

	empty, err := FromSlice[float32](f, nil, true)
	require.NoError(t, err)
	assert.Zero(t, empty.Length())
}

func TestSupportsTable(t *testing.T) {
	for _, op := range Operations {
		assert.False(t, Supports(op, buffer.Unknown), "%s must reject Unknown", op)
	}
	assert.True(t, Supports(OpCreate, buffer.UTF16))
	assert.False(t, Supports(OpCreateInWorkspace, buffer.UTF8))
	assert.True(t, Supports(OpCreateView, buffer.UTF8))
	assert.False(t, Supports(OpCreateView, buffer.UTF32))
	assert.False(t, Supports(OpCreateFromPointer, buffer.UTF8))
	assert.False(t, Supports(OpCreateStrings, buffer.Double))
	assert.False(t, Supports(Operation("Bogus"), buffer.Double))
}
