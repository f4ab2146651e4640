package serialization

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// Version is the library version recorded in written files.
const Version = "0.1.0"

// Format constants.
const (
	MagicBytes      = "NDBF"
	FormatVersion   = 2    // v2: fixed header with SHA-256 checksum
	HeaderAlignment = 64   // Data section and every buffer in it start on this boundary
	FixedHeaderSize = 64   // 0x40 bytes
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // Checksum position in the fixed header
)

// Flags for the container.
const (
	FlagHasMetadata uint32 = 1 << 0 // custom metadata present
	FlagHasStrings  uint32 = 1 << 1 // at least one UTF buffer
)

// Header is the JSON header of a container.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Version       string            `json:"ndbuf_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Buffers       []BufferMeta      `json:"buffers"`
	Metadata      map[string]string `json:"metadata"`
}

// BufferMeta describes one buffer in the data section.
type BufferMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`  // buffer.DataType name, e.g. "float", "utf8"
	Length int    `json:"length"` // Elements, or strings for UTF buffers
	Offset int64  `json:"offset"` // Bytes from the start of the data section
	Size   int64  `json:"size"`   // Bytes
	Mode   string `json:"mode"`   // Allocation mode of the buffer that was written
}

// DataType parses the stored type name.
func (m BufferMeta) DataType() (buffer.DataType, error) {
	return buffer.ParseDataType(m.DType)
}

// fixedHeader is the decoded 64-byte prefix.
type fixedHeader struct {
	Version    uint32
	Flags      uint32
	HeaderSize uint64
	DataSize   uint64
	Checksum   [ChecksumSize]byte
}

func (h fixedHeader) encode() []byte {
	p := make([]byte, FixedHeaderSize)
	copy(p[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(p[4:8], h.Version)
	binary.LittleEndian.PutUint32(p[8:12], h.Flags)
	binary.LittleEndian.PutUint64(p[16:24], h.HeaderSize)
	binary.LittleEndian.PutUint64(p[24:32], h.DataSize)
	copy(p[ChecksumOffset:ChecksumOffset+ChecksumSize], h.Checksum[:])
	return p
}

func decodeFixedHeader(p []byte) (fixedHeader, error) {
	var h fixedHeader
	if len(p) < FixedHeaderSize {
		return h, fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", len(p), FixedHeaderSize)
	}
	if string(p[0:4]) != MagicBytes {
		return h, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(p[4:8])
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, h.Version, FormatVersion)
	}
	h.Flags = binary.LittleEndian.Uint32(p[8:12])
	h.HeaderSize = binary.LittleEndian.Uint64(p[16:24])
	h.DataSize = binary.LittleEndian.Uint64(p[24:32])
	copy(h.Checksum[:], p[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if h.HeaderSize > MaxHeaderSize {
		return h, ErrHeaderTooLarge
	}
	if h.DataSize > 1<<62 {
		return h, fmt.Errorf("data size too large: %d", h.DataSize)
	}
	return h, nil
}

// alignUp rounds n up to HeaderAlignment.
func alignUp(n int64) int64 {
	return (n + HeaderAlignment - 1) / HeaderAlignment * HeaderAlignment
}
