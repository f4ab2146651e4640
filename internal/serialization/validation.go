package serialization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/ndbuf/internal/buffer"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxBufferCount   = 100_000
	MaxBufferNameLen = 4096
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all checks. It is the zero value.
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names and per-buffer metadata but not offsets.
	ValidationNormal
	// ValidationNone skips validation. Use only with trusted input.
	ValidationNone
)

// ValidateBufferOffsets checks for overlapping buffers and out-of-bounds access.
func ValidateBufferOffsets(buffers []BufferMeta, dataSize int64) error {
	if len(buffers) > MaxBufferCount {
		return &ValidationError{
			Type:    "too_many_buffers",
			Details: fmt.Sprintf("got %d, max %d", len(buffers), MaxBufferCount),
		}
	}

	sorted := make([]BufferMeta, len(buffers))
	copy(sorted, buffers)
	// Empty buffers sort first at a shared offset and never overlap.
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Size < sorted[j].Size
	})

	for i, m := range sorted {
		if m.Offset < 0 || m.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Buffer:  m.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", m.Offset, m.Size),
			}
		}
		if m.Offset > dataSize || m.Size > dataSize-m.Offset {
			return &ValidationError{
				Type:    "out_of_bounds",
				Buffer:  m.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", m.Offset, m.Size, dataSize),
			}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if m.Offset+m.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Buffer:  m.Name,
					Buffer2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						m.Offset, m.Offset+m.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// ValidateBufferName rejects empty, oversized and path-like names.
func ValidateBufferName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty name"}
	}
	if len(name) > MaxBufferNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Buffer:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxBufferNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{Type: "invalid_name", Buffer: name, Details: "contains '..'"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{Type: "invalid_name", Buffer: name, Details: "contains path separator (/ or \\)"}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{Type: "invalid_name", Buffer: name, Details: "contains null byte"}
	}
	return nil
}

// ValidateBufferMeta checks that type, length and size agree.
func ValidateBufferMeta(m BufferMeta) error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Type: "invalid_meta", Buffer: m.Name, Details: fmt.Sprintf(format, args...)}
	}
	dt, err := m.DataType()
	if err != nil {
		return invalid("%v", err)
	}
	if _, err := buffer.ParseAllocationMode(m.Mode); err != nil {
		return invalid("%v", err)
	}
	if m.Length < 0 {
		return invalid("negative length %d", m.Length)
	}
	if dt.IsString() {
		// count and offsets are int64
		if need := int64(m.Length+2) * 8; m.Size < need {
			return invalid("%d strings need at least %d bytes, have %d", m.Length, need, m.Size)
		}
		return nil
	}
	if want := int64(m.Length) * int64(dt.Size()); m.Size != want {
		return invalid("%d %s elements take %d bytes, size is %d", m.Length, dt, want, m.Size)
	}
	return nil
}

// ValidateHeader performs header validation at the given level.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Buffers) > MaxBufferCount {
		return &ValidationError{
			Type:    "too_many_buffers",
			Details: fmt.Sprintf("got %d, max %d", len(h.Buffers), MaxBufferCount),
		}
	}

	seen := make(map[string]struct{}, len(h.Buffers))
	for _, m := range h.Buffers {
		if err := ValidateBufferName(m.Name); err != nil {
			return err
		}
		if _, dup := seen[m.Name]; dup {
			return &ValidationError{Type: "duplicate_name", Buffer: m.Name, Buffer2: m.Name, Details: "name appears twice"}
		}
		seen[m.Name] = struct{}{}
		if err := ValidateBufferMeta(m); err != nil {
			return err
		}
	}

	if level == ValidationStrict {
		return ValidateBufferOffsets(h.Buffers, dataSize)
	}
	return nil
}
