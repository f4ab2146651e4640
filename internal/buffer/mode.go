package buffer

import (
	"fmt"
	"strings"
)

// AllocationMode describes where a buffer's storage lives.
type AllocationMode int

// Supported allocation modes.
const (
	// Heap storage is an ordinary Go slice.
	Heap AllocationMode = iota
	// Direct storage is allocated outside the Go heap and freed on the last Close.
	Direct
	// Pointer storage is owned by someone else: a raw pointer, a caller slice or a mapped file.
	Pointer
	// Workspace storage is carved from a workspace arena and dies with its generation.
	Workspace
)

// String returns a human-readable mode name.
func (m AllocationMode) String() string {
	switch m {
	case Heap:
		return "heap"
	case Direct:
		return "direct"
	case Pointer:
		return "pointer"
	case Workspace:
		return "workspace"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseAllocationMode parses a mode name. "javacpp" is accepted as Direct.
func ParseAllocationMode(s string) (AllocationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heap":
		return Heap, nil
	case "direct", "javacpp":
		return Direct, nil
	case "pointer":
		return Pointer, nil
	case "workspace":
		return Workspace, nil
	default:
		return Heap, fmt.Errorf("unknown allocation mode %q", s)
	}
}
