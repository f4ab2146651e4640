package serialization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ndbuf/internal/buffer"
)

func writeTestFile(t *testing.T) (string, map[string]*buffer.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapped.ndbf")
	buffers := testBuffers(t)
	require.NoError(t, WriteFile(path, buffers, map[string]string{"k": "v"}))
	return path, buffers
}

func TestMmapReaderBuffers(t *testing.T) {
	path, want := writeTestFile(t)

	r, err := NewMmapReader(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Verify())
	assert.Equal(t, "v", r.Header().Metadata["k"])
	assert.Equal(t, FlagHasMetadata|FlagHasStrings, r.Flags())

	got, err := r.Buffers()
	require.NoError(t, err)
	for name, b := range got {
		assert.Equal(t, buffer.Pointer, b.AllocationMode(), name)
		assertSameContents(t, want[name], b)
		require.NoError(t, b.Close())
	}
}

func TestMmapReaderZeroCopyIsPrivate(t *testing.T) {
	path, _ := writeTestFile(t)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	r, err := NewMmapReader(path, ReaderOptions{})
	require.NoError(t, err)

	weights, err := r.Buffer("weights")
	require.NoError(t, err)
	values, err := weights.AsFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), values[0])

	values[0] = 42
	again, err := r.Buffer("weights")
	require.NoError(t, err)
	v, err := again.Float32(0)
	require.NoError(t, err)
	assert.Equal(t, float32(42), v, "buffers of one reader share the mapping")

	require.NoError(t, weights.Close())
	require.NoError(t, again.Close())
	require.NoError(t, r.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "private mapping never writes back")
}

func TestMmapReaderBuffersOutliveReader(t *testing.T) {
	path, want := writeTestFile(t)

	r, err := NewMmapReader(path, ReaderOptions{})
	require.NoError(t, err)
	labels, err := r.Buffer("labels")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "closing twice is a no-op")

	_, err = r.Buffer("ids")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Verify(), ErrClosed)

	assertSameContents(t, want["labels"], labels)
	require.NoError(t, labels.Close())

	_, err = labels.Strings()
	assert.ErrorIs(t, err, buffer.ErrBufferClosed)
}

func TestMmapReaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewMmapReader(filepath.Join(dir, "missing.ndbf"), ReaderOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	small := filepath.Join(dir, "small.ndbf")
	require.NoError(t, os.WriteFile(small, []byte("NDBF"), 0o600))
	_, err = NewMmapReader(small, ReaderOptions{})
	assert.Error(t, err)

	path, _ := writeTestFile(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	corrupt := filepath.Join(dir, "corrupt.ndbf")
	require.NoError(t, os.WriteFile(corrupt, data, 0o600))

	_, err = NewMmapReader(corrupt, ReaderOptions{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	r, err := NewMmapReader(corrupt, ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	defer r.Close()
	assert.ErrorIs(t, r.Verify(), ErrChecksumMismatch)

	_, err = r.Buffer("missing")
	assert.ErrorIs(t, err, ErrBufferNotFound)
}

func TestMmapReaderBoundsCheckedAtEveryLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crafted.ndbf")
	require.NoError(t, os.WriteFile(path, container(t, outOfBoundsMeta(), make([]byte, 64)), 0o600))

	_, err := NewMmapReader(path, ReaderOptions{})
	assert.ErrorIs(t, err, ErrOutOfBounds)

	for _, level := range []ValidationLevel{ValidationNormal, ValidationNone} {
		r, err := NewMmapReader(path, ReaderOptions{ValidationLevel: level})
		require.NoError(t, err, "level %d", level)
		_, err = r.Buffer("a")
		assert.ErrorIs(t, err, ErrOutOfBounds, "level %d", level)
		_, err = r.Buffers()
		assert.ErrorIs(t, err, ErrOutOfBounds, "level %d", level)
		require.NoError(t, r.Close())
	}
}
