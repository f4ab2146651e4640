package serialization

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// ReaderOptions configures Reader and MmapReader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip hashing the data section on open
	ValidationLevel        ValidationLevel // Zero value is ValidationStrict
}

// layout is the parsed framing of a container.
type layout struct {
	fixed      fixedHeader
	header     Header
	dataOffset int64
	dataSize   int64
}

// readLayout parses and validates the headers of a container of size bytes.
func readLayout(r io.ReaderAt, size int64, opts ReaderOptions) (*layout, error) {
	prefix := make([]byte, FixedHeaderSize)
	if size < FixedHeaderSize {
		return nil, fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", size, FixedHeaderSize)
	}
	if _, err := r.ReadAt(prefix, 0); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	fixed, err := decodeFixedHeader(prefix)
	if err != nil {
		return nil, err
	}

	headerEnd := int64(FixedHeaderSize) + int64(fixed.HeaderSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	if headerEnd > size {
		return nil, fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, size)
	}
	headerJSON := make([]byte, fixed.HeaderSize)
	if _, err := r.ReadAt(headerJSON, FixedHeaderSize); err != nil {
		return nil, fmt.Errorf("failed to read header JSON: %w", err)
	}

	l := &layout{
		fixed:      fixed,
		dataOffset: alignUp(headerEnd),
		dataSize:   int64(fixed.DataSize), //nolint:gosec // G115: bounded in decodeFixedHeader
	}
	if err := json.Unmarshal(headerJSON, &l.header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if l.dataOffset > size || l.dataSize > size-l.dataOffset {
		return nil, fmt.Errorf("%w: data section [%d, %d) exceeds file size %d",
			ErrOutOfBounds, l.dataOffset, l.dataOffset+l.dataSize, size)
	}
	if err := ValidateHeader(&l.header, l.dataSize, opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if !opts.SkipChecksumValidation {
		computed, err := ComputeChecksumSection(r, l.dataOffset, l.dataSize)
		if err != nil {
			return nil, fmt.Errorf("failed to hash data section: %w", err)
		}
		if err := ValidateChecksum(computed, fixed.Checksum); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *layout) info(name string) (BufferMeta, error) {
	for _, m := range l.header.Buffers {
		if m.Name == name {
			return m, nil
		}
	}
	return BufferMeta{}, fmt.Errorf("%w: %q", ErrBufferNotFound, name)
}

// span returns the file range of a buffer. It is checked on every read, since
// ValidationNormal and ValidationNone skip the offset pass.
func (l *layout) span(meta BufferMeta) (start, end int64, err error) {
	if meta.Offset < 0 || meta.Size < 0 {
		return 0, 0, fmt.Errorf("%w: buffer %q: offset %d, size %d", ErrNegativeOffset, meta.Name, meta.Offset, meta.Size)
	}
	if meta.Offset > l.dataSize || meta.Size > l.dataSize-meta.Offset {
		return 0, 0, fmt.Errorf("%w: buffer %q: offset %d + size %d > data size %d",
			ErrOutOfBounds, meta.Name, meta.Offset, meta.Size, l.dataSize)
	}
	start = l.dataOffset + meta.Offset
	return start, start + meta.Size, nil
}

func (l *layout) names() []string {
	names := make([]string, len(l.header.Buffers))
	for i, m := range l.header.Buffers {
		names[i] = m.Name
	}
	return names
}

// Reader reads containers by copying buffers onto the heap.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	layout *layout
	closed bool
}

// Open opens the container at path with strict validation.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens the container at path.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r, err := NewReader(file, stat.Size(), opts)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader reads a container of size bytes from r.
func NewReader(r io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	l, err := readLayout(r, size, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	slog.Debug("container opened", "buffers", len(l.header.Buffers), "data_bytes", l.dataSize, "flags", l.fixed.Flags)
	return &Reader{r: r, layout: l}, nil
}

// Header returns the JSON header.
func (r *Reader) Header() Header { return r.layout.header }

// Flags returns the flags bitfield.
func (r *Reader) Flags() uint32 { return r.layout.fixed.Flags }

// Checksum returns the stored SHA-256 of the data section.
func (r *Reader) Checksum() [ChecksumSize]byte { return r.layout.fixed.Checksum }

// Metadata returns the custom metadata.
func (r *Reader) Metadata() map[string]string { return r.layout.header.Metadata }

// Names returns the buffer names in file order.
func (r *Reader) Names() []string { return r.layout.names() }

// Info returns the metadata of buffer name.
func (r *Reader) Info(name string) (BufferMeta, error) { return r.layout.info(name) }

// ReadBytes returns a copy of the stored bytes of buffer name.
func (r *Reader) ReadBytes(name string) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("reader: %w", ErrClosed)
	}
	meta, err := r.layout.info(name)
	if err != nil {
		return nil, err
	}
	start, end, err := r.layout.span(meta)
	if err != nil {
		return nil, err
	}
	data := make([]byte, end-start)
	if _, err := r.r.ReadAt(data, start); err != nil {
		return nil, fmt.Errorf("failed to read buffer %q: %w", name, err)
	}
	return data, nil
}

// ReadBuffer loads buffer name into a new heap buffer.
func (r *Reader) ReadBuffer(name string) (*buffer.Buffer, error) {
	if r.closed {
		return nil, fmt.Errorf("reader: %w", ErrClosed)
	}
	meta, err := r.layout.info(name)
	if err != nil {
		return nil, err
	}
	dt, err := meta.DataType()
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}

	if dt.IsString() {
		data, err := r.ReadBytes(name)
		if err != nil {
			return nil, err
		}
		buf, err := buffer.LoadStrings(data, dt)
		if err != nil {
			return nil, fmt.Errorf("buffer %q: %w", name, err)
		}
		if err := checkLength(meta, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	start, _, err := r.layout.span(meta)
	if err != nil {
		return nil, err
	}
	if meta.Length < 0 || int64(meta.Length) != meta.Size/int64(dt.Size()) || meta.Size%int64(dt.Size()) != 0 {
		return nil, fmt.Errorf("buffer %q: %w: size %d for %d elements", name, ErrInvalidBufferMeta, meta.Size, meta.Length)
	}
	buf, err := buffer.NewHeap(dt, meta.Length)
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}
	dst, err := buf.Bytes()
	if err != nil {
		return nil, err
	}
	if _, err := r.r.ReadAt(dst, start); err != nil {
		return nil, fmt.Errorf("failed to read buffer %q: %w", name, err)
	}
	return buf, nil
}

// ReadAll loads every buffer.
func (r *Reader) ReadAll() (map[string]*buffer.Buffer, error) {
	out := make(map[string]*buffer.Buffer, len(r.layout.header.Buffers))
	for _, m := range r.layout.header.Buffers {
		buf, err := r.ReadBuffer(m.Name)
		if err != nil {
			return nil, err
		}
		out[m.Name] = buf
	}
	return out, nil
}

// Close closes the underlying file, if the reader opened one.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func checkLength(meta BufferMeta, buf *buffer.Buffer) error {
	if buf.Length() != meta.Length {
		return fmt.Errorf("buffer %q: %w: header says %d strings, layout holds %d",
			meta.Name, ErrInvalidBufferMeta, meta.Length, buf.Length())
	}
	return nil
}
