package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ndbuf/internal/buffer"
)

func TestWriteSafeTensors(t *testing.T) {
	buffers := testBuffers(t)
	delete(buffers, "labels")

	var out bytes.Buffer
	require.NoError(t, WriteSafeTensors(&out, buffers, map[string]string{"format": "pt"}))

	data := out.Bytes()
	headerSize := binary.LittleEndian.Uint64(data[:8])
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data[8:8+headerSize], &header))

	var meta map[string]string
	require.NoError(t, json.Unmarshal(header["__metadata__"], &meta))
	assert.Equal(t, "pt", meta["format"])

	var weights SafeTensorHeader
	require.NoError(t, json.Unmarshal(header["weights"], &weights))
	assert.Equal(t, "F32", weights.DType)
	assert.Equal(t, []int64{5}, weights.Shape)

	var half SafeTensorHeader
	require.NoError(t, json.Unmarshal(header["half"], &half))
	assert.Equal(t, "F16", half.DType)
	assert.Equal(t, [2]int64{0, 4}, half.DataOffsets, "names are laid out alphabetically")

	body := data[8+headerSize:]
	want, err := buffers["weights"].Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, body[weights.DataOffsets[0]:weights.DataOffsets[1]])
}

func TestWriteSafeTensorsRejectsStrings(t *testing.T) {
	labels, err := buffer.NewStrings(buffer.UTF8, []string{"a"})
	require.NoError(t, err)

	err = WriteSafeTensorsFile(filepath.Join(t.TempDir(), "x.safetensors"), map[string]*buffer.Buffer{"labels": labels}, nil)
	assert.ErrorIs(t, err, buffer.ErrUnsupportedType)
}

func TestSafeTensorsRoundTrip(t *testing.T) {
	buffers := testBuffers(t)
	delete(buffers, "labels")

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteSafeTensorsFile(path, buffers, map[string]string{"k": "v"}))

	loaded, metadata, err := ReadSafeTensorsFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, metadata)
	require.Len(t, loaded, len(buffers))
	for name, want := range buffers {
		assertSameContents(t, want, loaded[name])
	}
}

func TestReadSafeTensorsRejectsBadHeader(t *testing.T) {
	header := []byte(`{"w":{"dtype":"F32","shape":[2,2],"data_offsets":[0,8]}}`)
	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(header))))
	file.Write(header)
	file.Write(make([]byte, 8))

	_, _, err := ReadSafeTensors(bytes.NewReader(file.Bytes()), int64(file.Len()))
	assert.Error(t, err, "2x2 float32 needs 16 bytes")

	header = []byte(`{"w":{"dtype":"C64","shape":[1],"data_offsets":[0,8]}}`)
	file.Reset()
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(header))))
	file.Write(header)
	file.Write(make([]byte, 8))
	_, _, err = ReadSafeTensors(bytes.NewReader(file.Bytes()), int64(file.Len()))
	assert.Error(t, err)

	huge := make([]byte, 8)
	binary.LittleEndian.PutUint64(huge, 1<<40)
	_, _, err = ReadSafeTensors(bytes.NewReader(huge), 8)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func safeTensorsFile(t *testing.T, header string, dataSize int) []byte {
	t.Helper()
	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(header))))
	file.WriteString(header)
	file.Write(make([]byte, dataSize))
	return file.Bytes()
}

func TestReadSafeTensorsRejectsOverflowingShape(t *testing.T) {
	// 2^32 * 2^32 wraps to zero elements in int64 and would match empty offsets.
	data := safeTensorsFile(t, `{"w":{"dtype":"F32","shape":[4294967296,4294967296,4],"data_offsets":[0,0]}}`, 8)
	_, _, err := ReadSafeTensors(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, ErrOutOfBounds)

	data = safeTensorsFile(t, `{"w":{"dtype":"F32","shape":[1099511627776,0],"data_offsets":[0,0]}}`, 8)
	buffers, _, err := ReadSafeTensors(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Zero(t, buffers["w"].Length())
}

func TestShapeElements(t *testing.T) {
	tests := []struct {
		shape   []int64
		limit   int64
		want    int64
		wantErr bool
	}{
		{nil, 10, 1, false},
		{[]int64{2, 3}, 6, 6, false},
		{[]int64{2, 3}, 5, 0, true},
		{[]int64{5, 0, 1 << 62}, 0, 0, false},
		{[]int64{-1, 0}, 10, 0, true},
		{[]int64{1 << 62, 1 << 62}, 1 << 62, 0, true},
	}
	for _, tt := range tests {
		got, err := shapeElements(tt.shape, tt.limit)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.shape)
			continue
		}
		require.NoError(t, err, "%v", tt.shape)
		assert.Equal(t, tt.want, got, "%v", tt.shape)
	}
}
