package serialization

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// MmapReader gives zero-copy access to a container through a private file
// mapping. Buffers it returns are Pointer mode and alias the mapping. The
// mapping is released once the reader and every buffer it returned are closed.
type MmapReader struct {
	file   *os.File
	data   []byte
	layout *layout

	mu     sync.Mutex
	refs   int // reader itself plus live buffers
	closed bool
}

// NewMmapReader maps the container at path.
func NewMmapReader(path string, opts ReaderOptions) (*MmapReader, error) {
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
	if stat.Size() < FixedHeaderSize {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse header: file too small: %d bytes (minimum %d bytes required)",
			stat.Size(), FixedHeaderSize)
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	r := &MmapReader{file: file, data: data, refs: 1}

	l, err := readLayout(bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	r.layout = l
	slog.Debug("container mapped", "path", path, "buffers", len(l.header.Buffers), "bytes", len(data))
	return r, nil
}

// Header returns the JSON header.
func (r *MmapReader) Header() Header { return r.layout.header }

// Flags returns the flags bitfield.
func (r *MmapReader) Flags() uint32 { return r.layout.fixed.Flags }

// Checksum returns the stored SHA-256 of the data section.
func (r *MmapReader) Checksum() [ChecksumSize]byte { return r.layout.fixed.Checksum }

// Names returns the buffer names in file order.
func (r *MmapReader) Names() []string { return r.layout.names() }

// Info returns the metadata of buffer name.
func (r *MmapReader) Info(name string) (BufferMeta, error) { return r.layout.info(name) }

// Verify recomputes the data section checksum.
func (r *MmapReader) Verify() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("mmap reader: %w", ErrClosed)
	}
	section := r.data[r.layout.dataOffset : r.layout.dataOffset+r.layout.dataSize]
	return ValidateChecksum(ComputeChecksum(section), r.layout.fixed.Checksum)
}

// Buffer returns buffer name aliasing the mapping. Writes to it stay private
// to this process. Close the buffer when done with it.
func (r *MmapReader) Buffer(name string) (*buffer.Buffer, error) {
	meta, err := r.layout.info(name)
	if err != nil {
		return nil, err
	}
	dt, err := meta.DataType()
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("mmap reader: %w", ErrClosed)
	}
	start, end, err := r.layout.span(meta)
	if err != nil {
		return nil, err
	}
	region := r.data[start:end:end]

	var buf *buffer.Buffer
	if dt.IsString() {
		buf, err = buffer.WrapStrings(region, dt, meta.Length, 0, r.releaseRef)
	} else {
		buf, err = buffer.Wrap(region, dt, meta.Length, 0, r.releaseRef)
	}
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}
	r.refs++
	return buf, nil
}

// Buffers returns every buffer aliasing the mapping.
func (r *MmapReader) Buffers() (map[string]*buffer.Buffer, error) {
	out := make(map[string]*buffer.Buffer, len(r.layout.header.Buffers))
	for _, m := range r.layout.header.Buffers {
		buf, err := r.Buffer(m.Name)
		if err != nil {
			for _, b := range out {
				_ = b.Close()
			}
			return nil, err
		}
		out[m.Name] = buf
	}
	return out, nil
}

// releaseRef is the free hook of every returned buffer.
func (r *MmapReader) releaseRef([]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unrefLocked()
}

func (r *MmapReader) unrefLocked() error {
	r.refs--
	if r.refs > 0 || r.data == nil {
		return nil
	}
	err := munmapFile(r.data)
	r.data = nil
	slog.Debug("container unmapped", "file", r.file.Name())
	return err
}

// Close closes the file. The mapping stays alive while returned buffers are open.
func (r *MmapReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.unrefLocked()
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
