package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// SafeTensors layout:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// SafeTensorHeader describes one tensor in a SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) relative to the data
}

const safeTensorsMetadataKey = "__metadata__"

// safeTensorsDType maps a numeric data type to its SafeTensors name.
func safeTensorsDType(dt buffer.DataType) (string, bool) {
	switch dt {
	case buffer.Bool:
		return "BOOL", true
	case buffer.Int8:
		return "I8", true
	case buffer.Int16:
		return "I16", true
	case buffer.Int32:
		return "I32", true
	case buffer.Int64:
		return "I64", true
	case buffer.Uint8:
		return "U8", true
	case buffer.Uint16:
		return "U16", true
	case buffer.Uint32:
		return "U32", true
	case buffer.Uint64:
		return "U64", true
	case buffer.Half:
		return "F16", true
	case buffer.BFloat16:
		return "BF16", true
	case buffer.Float:
		return "F32", true
	case buffer.Double:
		return "F64", true
	default:
		return "", false
	}
}

// dataTypeFromSafeTensors is the inverse of safeTensorsDType.
func dataTypeFromSafeTensors(name string) (buffer.DataType, bool) {
	for _, dt := range buffer.DataTypes {
		if st, ok := safeTensorsDType(dt); ok && st == name {
			return dt, true
		}
	}
	return buffer.Unknown, false
}

// WriteSafeTensors exports numeric buffers as one-dimensional SafeTensors
// tensors, in name order. UTF buffers have no SafeTensors encoding and are rejected.
func WriteSafeTensors(w io.Writer, buffers map[string]*buffer.Buffer, metadata map[string]string) error {
	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[safeTensorsMetadataKey] = metadata
	}

	data := make([][]byte, len(names))
	var offset int64
	for i, name := range names {
		b := buffers[name]
		if b == nil {
			return fmt.Errorf("buffer %q is nil", name)
		}
		dtype, ok := safeTensorsDType(b.DataType())
		if !ok {
			return fmt.Errorf("buffer %q: %w", name, &buffer.UnsupportedTypeError{Op: "WriteSafeTensors", Type: b.DataType()})
		}
		raw, err := payload(b)
		if err != nil {
			return fmt.Errorf("buffer %q: %w", name, err)
		}
		size := int64(len(raw))
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       []int64{int64(b.Length())},
			DataOffsets: [2]int64{offset, offset + size},
		}
		data[i] = raw
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, raw := range data {
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("failed to write buffer %s: %w", names[i], err)
		}
	}
	return nil
}

// WriteSafeTensorsFile exports buffers to a new SafeTensors file at path.
func WriteSafeTensorsFile(path string, buffers map[string]*buffer.Buffer, metadata map[string]string) (err error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()
	return WriteSafeTensors(file, buffers, metadata)
}

// ReadSafeTensors loads every tensor of a SafeTensors file of size bytes into
// heap buffers. Tensors are flattened; the buffer length is the element count.
func ReadSafeTensors(r io.ReaderAt, size int64) (map[string]*buffer.Buffer, map[string]string, error) {
	var prefix [8]byte
	if _, err := r.ReadAt(prefix[:], 0); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(prefix[:])
	if headerSize > MaxHeaderSize || int64(headerSize) > size-8 { //nolint:gosec // G115: bounded by MaxHeaderSize
		return nil, nil, fmt.Errorf("%w: safetensors header of %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := r.ReadAt(headerJSON, 8); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	var metadata map[string]string
	if m, ok := raw[safeTensorsMetadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(raw, safeTensorsMetadataKey)
	}

	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	dataSize := size - dataOffset
	buffers := make(map[string]*buffer.Buffer, len(raw))
	for name, msg := range raw {
		var info SafeTensorHeader
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, nil, fmt.Errorf("failed to parse tensor %s: %w", name, err)
		}
		buf, err := readSafeTensor(r, name, info, dataOffset, dataSize)
		if err != nil {
			return nil, nil, err
		}
		buffers[name] = buf
	}
	return buffers, metadata, nil
}

// shapeElements returns the element count of shape, failing once the count
// would exceed limit. Shapes with a zero dimension hold no elements.
func shapeElements(shape []int64, limit int64) (int64, error) {
	if slices.Contains(shape, 0) {
		for _, dim := range shape {
			if dim < 0 {
				return 0, fmt.Errorf("negative dimension in shape %v", shape)
			}
		}
		return 0, nil
	}
	length := int64(1)
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if length > limit/dim {
			return 0, fmt.Errorf("%w: shape %v exceeds %d elements", ErrOutOfBounds, shape, limit)
		}
		length *= dim
	}
	return length, nil
}

func readSafeTensor(r io.ReaderAt, name string, info SafeTensorHeader, dataOffset, dataSize int64) (*buffer.Buffer, error) {
	dt, ok := dataTypeFromSafeTensors(info.DType)
	if !ok {
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	length, err := shapeElements(info.Shape, dataSize/int64(dt.Size()))
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > dataSize {
		return nil, fmt.Errorf("%w: tensor %s: offsets [%d, %d] outside data of %d bytes",
			ErrOutOfBounds, name, start, end, dataSize)
	}
	if end-start != length*int64(dt.Size()) {
		return nil, fmt.Errorf("tensor %s: %d bytes for %d %s elements", name, end-start, length, dt)
	}

	buf, err := buffer.NewHeap(dt, int(length))
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	dst, err := buf.Bytes()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadAt(dst, dataOffset+start); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return buf, nil
}

// ReadSafeTensorsFile loads a SafeTensors file.
func ReadSafeTensorsFile(path string) (map[string]*buffer.Buffer, map[string]string, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return ReadSafeTensors(file, stat.Size())
}
