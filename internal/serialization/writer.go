package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// Writer writes named buffers in the NDBF container format.
type Writer struct {
	w      io.Writer
	closer io.Closer
	closed bool
}

// NewWriter returns a writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Create creates or truncates the file at path and returns a writer for it.
func Create(path string) (*Writer, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &Writer{w: file, closer: file}, nil
}

// WriteFile writes buffers to a new file at path.
func WriteFile(path string, buffers map[string]*buffer.Buffer, metadata map[string]string) (err error) {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
	}()
	return w.WriteBuffers(buffers, metadata)
}

// section is one buffer's bytes at its offset in the data section.
type section struct {
	offset int64
	data   []byte
}

// writeData writes the data section: every section at its offset, zero padded.
func writeData(dst io.Writer, sections []section, total int64) error {
	var pos int64
	var zeros [HeaderAlignment]byte
	pad := func(to int64) error {
		for pos < to {
			n := min(to-pos, int64(len(zeros)))
			if _, err := dst.Write(zeros[:n]); err != nil {
				return err
			}
			pos += n
		}
		return nil
	}
	for _, s := range sections {
		if err := pad(s.offset); err != nil {
			return err
		}
		if _, err := dst.Write(s.data); err != nil {
			return err
		}
		pos += int64(len(s.data))
	}
	return pad(total)
}

// payload returns the bytes stored for b. Workspace buffers are copied so
// that a reset before the write cannot change what gets written.
func payload(b *buffer.Buffer) ([]byte, error) {
	if b.DataType().IsString() {
		return b.Layout()
	}
	if b.AllocationMode() != buffer.Workspace {
		return b.Bytes()
	}
	var data []byte
	err := b.WithBytes(func(raw []byte) error {
		data = bytes.Clone(raw)
		return nil
	})
	return data, err
}

// WriteBuffers writes a complete container holding buffers. Buffers are laid
// out in name order. Views are written as standalone buffers.
func (w *Writer) WriteBuffers(buffers map[string]*buffer.Buffer, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer: %w", ErrClosed)
	}

	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > MaxBufferCount {
		return &ValidationError{
			Type:    "too_many_buffers",
			Details: fmt.Sprintf("got %d, max %d", len(names), MaxBufferCount),
		}
	}

	header := Header{
		FormatVersion: FormatVersion,
		Version:       Version,
		CreatedAt:     time.Now().UTC(),
		Buffers:       make([]BufferMeta, 0, len(names)),
		Metadata:      metadata,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	var flags uint32
	if len(metadata) > 0 {
		flags |= FlagHasMetadata
	}

	sections := make([]section, 0, len(names))
	var offset int64
	for _, name := range names {
		if err := ValidateBufferName(name); err != nil {
			return err
		}
		b := buffers[name]
		if b == nil {
			return fmt.Errorf("buffer %q is nil", name)
		}
		data, err := payload(b)
		if err != nil {
			return fmt.Errorf("buffer %q: %w", name, err)
		}
		if b.DataType().IsString() {
			flags |= FlagHasStrings
		}

		offset = alignUp(offset)
		header.Buffers = append(header.Buffers, BufferMeta{
			Name:   name,
			DType:  b.DataType().String(),
			Length: b.Length(),
			Offset: offset,
			Size:   int64(len(data)),
			Mode:   b.AllocationMode().String(),
		})
		sections = append(sections, section{offset: offset, data: data})
		offset += int64(len(data))
	}
	dataSize := alignUp(offset)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	hash := newChecksumWriter()
	if err := writeData(hash, sections, dataSize); err != nil {
		return fmt.Errorf("failed to hash data: %w", err)
	}

	fixed := fixedHeader{
		Version:    FormatVersion,
		Flags:      flags,
		HeaderSize: uint64(len(headerJSON)),
		DataSize:   uint64(dataSize), //nolint:gosec // G115: sum of slice lengths
		Checksum:   hash.Sum(),
	}
	if _, err := w.w.Write(fixed.encode()); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	headerEnd := int64(FixedHeaderSize + len(headerJSON))
	if padding := alignUp(headerEnd) - headerEnd; padding > 0 {
		if _, err := w.w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if err := writeData(w.w, sections, dataSize); err != nil {
		return fmt.Errorf("failed to write buffer data: %w", err)
	}

	slog.Debug("buffers written", "count", len(sections), "data_bytes", dataSize, "flags", flags)
	return nil
}

// Close closes the underlying file, if the writer opened one.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
