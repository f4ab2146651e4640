package buffer

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// UTF buffer layout, all integers little-endian int64:
//
//	[count][offset_0 ... offset_count][payload]
//
// offset_i is the byte position of string i within the payload and
// offset_count is the payload length. UTF buffers are immutable.

func stringEncoding(dt DataType) encoding.Encoding {
	switch dt {
	case UTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF32:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	default:
		return nil
	}
}

func encodeString(dt DataType, s string) ([]byte, error) {
	enc := stringEncoding(dt)
	if enc == nil {
		return []byte(s), nil
	}
	return enc.NewEncoder().Bytes([]byte(s))
}

func decodeString(dt DataType, p []byte) (string, error) {
	enc := stringEncoding(dt)
	if enc == nil {
		return string(p), nil
	}
	out, err := enc.NewDecoder().Bytes(p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func stringHeaderSize(count int) int {
	return (count + 2) * 8
}

// EncodeStrings serializes values into the UTF buffer layout.
func EncodeStrings(dtype DataType, values []string) ([]byte, error) {
	if !dtype.IsString() {
		return nil, &UnsupportedTypeError{Op: "EncodeStrings", Type: dtype}
	}
	encoded := make([][]byte, len(values))
	total := 0
	for i, s := range values {
		p, err := encodeString(dtype, s)
		if err != nil {
			return nil, fmt.Errorf("encode string %d as %s: %w", i, dtype, err)
		}
		encoded[i] = p
		total += len(p)
	}

	header := stringHeaderSize(len(values))
	data := make([]byte, header+total)
	binary.LittleEndian.PutUint64(data, uint64(len(values)))
	pos := 0
	for i, p := range encoded {
		binary.LittleEndian.PutUint64(data[8+i*8:], uint64(pos))
		copy(data[header+pos:], p)
		pos += len(p)
	}
	binary.LittleEndian.PutUint64(data[8+len(values)*8:], uint64(pos))
	return data, nil
}

// NewStrings encodes values into a heap-backed UTF buffer.
func NewStrings(dtype DataType, values []string) (*Buffer, error) {
	data, err := EncodeStrings(dtype, values)
	if err != nil {
		return nil, err
	}
	s := newStorage(data, Heap, nil)
	s.strings = len(values)
	return newStringBuffer(s, dtype, 0, len(values)), nil
}

// LoadStrings takes ownership of data holding the UTF buffer layout and
// returns a heap buffer over all of its strings.
func LoadStrings(data []byte, dtype DataType) (*Buffer, error) {
	if !dtype.IsString() {
		return nil, &UnsupportedTypeError{Op: "LoadStrings", Type: dtype}
	}
	count, err := checkStringLayout(data)
	if err != nil {
		return nil, err
	}
	s := newStorage(data, Heap, nil)
	s.strings = count
	return newStringBuffer(s, dtype, 0, count), nil
}

// WrapStrings aliases memory holding the UTF buffer layout and covers
// strings [offset, offset+length).
func WrapStrings(data []byte, dtype DataType, length, offset int, free func([]byte) error) (*Buffer, error) {
	if !dtype.IsString() {
		return nil, &UnsupportedTypeError{Op: "WrapStrings", Type: dtype}
	}
	count, err := checkStringLayout(data)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > count {
		return nil, fmt.Errorf("WrapStrings: %w: [%d, %d) of %d strings", ErrIndexOutOfRange, offset, offset+length, count)
	}
	s := newStorage(data, Pointer, free)
	s.strings = count
	return newStringBuffer(s, dtype, offset, length), nil
}

// newStringBuffer covers strings [offset, offset+length) of s. The payload
// size is fixed here so ByteSize does not depend on the storage staying live.
func newStringBuffer(s *storage, dtype DataType, offset, length int) *Buffer {
	b := &Buffer{store: s, dtype: dtype, offset: offset, length: length}
	start, end := b.stringSpan(s.data, offset, offset+length)
	b.payloadSize = end - start
	return b
}

// checkStringLayout validates the header and returns the string count.
func checkStringLayout(data []byte) (int, error) {
	if len(data) < 16 {
		return 0, fmt.Errorf("%w: string layout needs at least 16 bytes, have %d", ErrInvalidLength, len(data))
	}
	raw := binary.LittleEndian.Uint64(data)
	if raw > uint64(len(data)/8) {
		return 0, fmt.Errorf("%w: string count %d exceeds layout size %d", ErrInvalidLength, raw, len(data))
	}
	count := int(raw)
	header := stringHeaderSize(count)
	if header > len(data) {
		return 0, fmt.Errorf("%w: header of %d strings needs %d bytes, have %d", ErrInvalidLength, count, header, len(data))
	}
	payload := uint64(len(data) - header)
	prev := uint64(0)
	for i := 0; i <= count; i++ {
		off := binary.LittleEndian.Uint64(data[8+i*8:])
		if off < prev || off > payload {
			return 0, fmt.Errorf("%w: string offset %d of entry %d outside payload of %d bytes", ErrInvalidLength, off, i, payload)
		}
		prev = off
	}
	return count, nil
}

func (b *Buffer) stringData(op string) ([]byte, error) {
	if !b.dtype.IsString() {
		return nil, fmt.Errorf("%w: %s on %s buffer", ErrTypeMismatch, op, b.dtype)
	}
	return b.live()
}

// stringSpan returns the payload byte range [start, end) of strings [from, to).
func (b *Buffer) stringSpan(data []byte, from, to int) (int, int) {
	header := stringHeaderSize(b.store.strings)
	start := int(binary.LittleEndian.Uint64(data[8+from*8:]))
	end := int(binary.LittleEndian.Uint64(data[8+to*8:]))
	return header + start, header + end
}

// StringAt returns string i of a UTF buffer.
func (b *Buffer) StringAt(i int) (string, error) {
	data, err := b.stringData("StringAt")
	if err != nil {
		return "", err
	}
	if i < 0 || i >= b.length {
		return "", &IndexError{Index: i, Length: b.length}
	}
	j := b.offset + i
	start, end := b.stringSpan(data, j, j+1)
	return decodeString(b.dtype, data[start:end])
}

// Strings returns every string covered by a UTF buffer.
func (b *Buffer) Strings() ([]string, error) {
	if _, err := b.stringData("Strings"); err != nil {
		return nil, err
	}
	out := make([]string, b.length)
	for i := range out {
		s, err := b.StringAt(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Layout returns the covered strings re-encoded in the UTF buffer layout.
// It is what serialization writes and WrapStrings reads back.
func (b *Buffer) Layout() ([]byte, error) {
	values, err := b.Strings()
	if err != nil {
		return nil, err
	}
	return EncodeStrings(b.dtype, values)
}

func (b *Buffer) payload() ([]byte, error) {
	data, err := b.stringData("Bytes")
	if err != nil {
		return nil, err
	}
	start, end := b.stringSpan(data, b.offset, b.offset+b.length)
	return data[start:end], nil
}

func (b *Buffer) stringByteSize() int {
	return stringHeaderSize(b.length) + b.payloadSize
}
