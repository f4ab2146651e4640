package serialization

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBufferOffsets(t *testing.T) {
	tests := []struct {
		name     string
		buffers  []BufferMeta
		dataSize int64
		wantErr  error
	}{
		{
			name: "disjoint",
			buffers: []BufferMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 128, Size: 200},
			},
			dataSize: 384,
		},
		{
			name: "exact boundary",
			buffers: []BufferMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 100, Size: 100},
			},
			dataSize: 200,
		},
		{
			name: "overlap by one byte",
			buffers: []BufferMeta{
				{Name: "b", Offset: 99, Size: 100},
				{Name: "a", Offset: 0, Size: 100},
			},
			dataSize: 200,
			wantErr:  ErrOffsetOverlap,
		},
		{
			name:     "past end",
			buffers:  []BufferMeta{{Name: "a", Offset: 64, Size: 100}},
			dataSize: 128,
			wantErr:  ErrOutOfBounds,
		},
		{
			name:     "negative size",
			buffers:  []BufferMeta{{Name: "a", Offset: 0, Size: -1}},
			dataSize: 128,
			wantErr:  ErrNegativeOffset,
		},
		{
			name:     "offset overflow",
			buffers:  []BufferMeta{{Name: "a", Offset: 1 << 62, Size: 1 << 62}},
			dataSize: 128,
			wantErr:  ErrOutOfBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBufferOffsets(tt.buffers, tt.dataSize)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestValidateBufferName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain", "layer.0.weight", nil},
		{"unicode", "gewichte_ü", nil},
		{"empty", "", ErrInvalidBufferName},
		{"traversal", "../etc/passwd", ErrInvalidBufferName},
		{"slash", "a/b", ErrInvalidBufferName},
		{"backslash", `a\b`, ErrInvalidBufferName},
		{"null byte", "a\x00b", ErrInvalidBufferName},
		{"too long", strings.Repeat("x", MaxBufferNameLen+1), ErrBufferNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBufferName(tt.input)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBufferMeta(t *testing.T) {
	tests := []struct {
		name    string
		meta    BufferMeta
		wantErr bool
	}{
		{"float", BufferMeta{Name: "a", DType: "float", Length: 4, Size: 16, Mode: "heap"}, false},
		{"strings", BufferMeta{Name: "a", DType: "utf8", Length: 2, Size: 40, Mode: "pointer"}, false},
		{"size mismatch", BufferMeta{Name: "a", DType: "double", Length: 4, Size: 16, Mode: "heap"}, true},
		{"unknown dtype", BufferMeta{Name: "a", DType: "complex", Length: 1, Size: 8, Mode: "heap"}, true},
		{"unknown mode", BufferMeta{Name: "a", DType: "int8", Length: 1, Size: 1, Mode: "gpu"}, true},
		{"negative length", BufferMeta{Name: "a", DType: "int8", Length: -1, Size: 0, Mode: "heap"}, true},
		{"string header too small", BufferMeta{Name: "a", DType: "utf16", Length: 3, Size: 16, Mode: "heap"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBufferMeta(tt.meta)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBufferMeta) {
				t.Fatalf("expected ErrInvalidBufferMeta, got %v", err)
			}
		})
	}
}

func TestValidateHeaderLevels(t *testing.T) {
	h := &Header{Buffers: []BufferMeta{
		{Name: "a", DType: "int32", Length: 2, Offset: 0, Size: 8, Mode: "heap"},
		{Name: "b", DType: "int32", Length: 2, Offset: 4, Size: 8, Mode: "heap"},
	}}

	if err := ValidateHeader(h, 64, ValidationStrict); !errors.Is(err, ErrOffsetOverlap) {
		t.Errorf("strict: got %v, want overlap", err)
	}
	if err := ValidateHeader(h, 64, ValidationNormal); err != nil {
		t.Errorf("normal skips offsets, got %v", err)
	}

	h.Buffers[1].Name = "a"
	if err := ValidateHeader(h, 64, ValidationNormal); !errors.Is(err, ErrInvalidBufferName) {
		t.Errorf("duplicate names: got %v", err)
	}
	if err := ValidateHeader(h, 64, ValidationNone); err != nil {
		t.Errorf("none: got %v", err)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Type: "offset_overlap", Buffer: "a", Buffer2: "b", Details: "x"}
	if got := err.Error(); !strings.Contains(got, `"a"`) || !strings.Contains(got, `"b"`) {
		t.Errorf("message should name both buffers: %s", got)
	}
	err = &ValidationError{Type: "too_many_buffers", Details: "y"}
	if got := err.Error(); got != "too_many_buffers: y" {
		t.Errorf("got %q", got)
	}
}

func TestValidateBufferOffsetsEmptyBuffers(t *testing.T) {
	buffers := []BufferMeta{
		{Name: "data", Offset: 0, Size: 64},
		{Name: "empty", Offset: 0, Size: 0},
		{Name: "also_empty", Offset: 64, Size: 0},
	}
	if err := ValidateBufferOffsets(buffers, 64); err != nil {
		t.Fatalf("empty buffers sharing an offset must pass: %v", err)
	}
}
