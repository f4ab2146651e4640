package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Arena is the part of a workspace a buffer needs to check its own liveness.
// Generation is bumped on every reset or close; a region allocated under an
// older generation must no longer be touched.
type Arena interface {
	Name() string
	Valid(generation uint64) bool
}

// storage is a reference-counted memory region shared by a buffer and its views.
type storage struct {
	data     []byte
	mode     AllocationMode
	refCount atomic.Int32
	mu       sync.Mutex
	free     func([]byte) error // Direct unmap or owner callback, nil for GC-managed memory

	arena      Arena
	generation uint64

	// strings is the total string count for UTF storage, zero otherwise.
	strings int
}

func newStorage(data []byte, mode AllocationMode, free func([]byte) error) *storage {
	s := &storage{
		data: data,
		mode: mode,
		free: free,
	}
	s.refCount.Store(1)
	return s
}

func (s *storage) addRef() {
	s.refCount.Add(1)
}

// release drops one reference and frees the memory when none remain.
func (s *storage) release() error {
	if s.refCount.Add(-1) != 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.data
	s.data = nil
	if s.free != nil && data != nil {
		if err := s.free(data); err != nil {
			return fmt.Errorf("free %s storage: %w", s.mode, err)
		}
	}
	return nil
}

// bytes returns the live memory or the reason it is no longer accessible.
func (s *storage) bytes() ([]byte, error) {
	if s.refCount.Load() <= 0 {
		return nil, ErrBufferClosed
	}
	if s.arena != nil && !s.arena.Valid(s.generation) {
		return nil, fmt.Errorf("%w: workspace %q generation %d", ErrStaleBuffer, s.arena.Name(), s.generation)
	}
	return s.data, nil
}
