// Package workspace implements scoped memory arenas.
//
// A Workspace hands out regions by bumping an offset into one backing
// allocation. Leaving the outermost scope, Reset or Close bump the workspace
// generation; every region remembers the generation it was allocated under,
// so memory that outlived its cycle is detected instead of silently reused.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/born-ml/ndbuf/internal/buffer"
	"github.com/born-ml/ndbuf/internal/envconfig"
	"github.com/born-ml/ndbuf/internal/logutil"
)

// Alignment of every region handed out by a workspace.
const Alignment = 8

// Common errors.
var (
	ErrWorkspaceClosed    = errors.New("workspace is closed")
	ErrWorkspaceExhausted = errors.New("workspace is exhausted")
	ErrScopeUnderflow     = errors.New("workspace scope left more often than entered")
)

// Policy decides what happens when an allocation does not fit.
type Policy int

const (
	// FailOnExhaustion returns ErrWorkspaceExhausted.
	FailOnExhaustion Policy = iota
	// SpillToHeap serves the allocation from the Go heap. Spilled regions are
	// still bound to the current generation, and the arena grows to cover
	// them on the next reset.
	SpillToHeap
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case FailOnExhaustion:
		return "fail"
	case SpillToHeap:
		return "spill"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Config controls workspace sizing and backing memory.
type Config struct {
	InitialSize int    // Arena size in bytes at creation.
	MaxSize     int    // Upper bound for arena growth.
	Policy      Policy // Behavior on exhaustion.
	Direct      bool   // Back the arena with off-heap memory.
}

// DefaultConfig reads sizing and policy from the environment.
func DefaultConfig() Config {
	cfg := Config{
		InitialSize: int(envconfig.WorkspaceSize()),    //nolint:gosec // G115: configured size
		MaxSize:     int(envconfig.WorkspaceMaxSize()), //nolint:gosec // G115: configured size
		Policy:      FailOnExhaustion,
		Direct:      envconfig.AllocMode() != "heap",
	}
	if envconfig.WorkspaceSpill(true) {
		cfg.Policy = SpillToHeap
	}
	return cfg
}

// Region is memory handed out by Alloc.
type Region struct {
	Data       []byte
	Generation uint64
	Spilled    bool
}

// Stats is a snapshot of workspace usage.
type Stats struct {
	Capacity     int
	Used         int
	SpilledBytes int
	Cycles       uint64
	Generation   uint64
	Depth        int
}

// Workspace is a bump-allocated arena with generation tracking.
// It is safe for concurrent use.
type Workspace struct {
	id   uuid.UUID
	name string
	cfg  Config

	mu      sync.Mutex
	data    []byte
	free    func([]byte) error
	offset  int
	spilled int
	depth   int
	cycles  uint64

	generation atomic.Uint64
	closed     atomic.Bool
}

var _ buffer.Arena = (*Workspace)(nil)

// New creates a workspace and allocates its arena.
func New(name string, cfg Config) (*Workspace, error) {
	if cfg.InitialSize < 0 {
		return nil, fmt.Errorf("workspace %q: negative initial size %d", name, cfg.InitialSize)
	}
	if cfg.MaxSize < cfg.InitialSize {
		cfg.MaxSize = cfg.InitialSize
	}
	w := &Workspace{
		id:   uuid.New(),
		name: name,
		cfg:  cfg,
	}
	if err := w.allocate(cfg.InitialSize); err != nil {
		return nil, fmt.Errorf("workspace %q: %w", name, err)
	}
	slog.Debug("workspace created", "name", name, "id", w.id, "size", cfg.InitialSize, "direct", cfg.Direct, "policy", cfg.Policy)
	return w, nil
}

// allocDirect is replaced in tests to simulate mapping failures.
var allocDirect = buffer.AllocDirect

// allocate replaces the backing memory. The old arena is released only once
// the new one exists. Callers hold mu or own w exclusively.
func (w *Workspace) allocate(size int) error {
	var (
		data []byte
		free func([]byte) error
		err  error
	)
	if w.cfg.Direct {
		if data, free, err = allocDirect(size); err != nil {
			return fmt.Errorf("allocate %d direct bytes: %w", size, err)
		}
	} else {
		data = make([]byte, size)
	}
	if err := w.release(); err != nil {
		if free != nil {
			_ = free(data)
		}
		return err
	}
	w.data, w.free = data, free
	return nil
}

func (w *Workspace) release() error {
	data, free := w.data, w.free
	w.data, w.free = nil, nil
	if free != nil && data != nil {
		return free(data)
	}
	return nil
}

// ID returns the unique workspace identifier.
func (w *Workspace) ID() uuid.UUID { return w.id }

// Name returns the workspace name.
func (w *Workspace) Name() string { return w.name }

// Config returns the configuration the workspace was created with.
func (w *Workspace) Config() Config { return w.cfg }

// Generation returns the current generation.
func (w *Workspace) Generation() uint64 { return w.generation.Load() }

// Valid reports whether memory allocated under generation may still be used.
func (w *Workspace) Valid(generation uint64) bool {
	return !w.closed.Load() && w.generation.Load() == generation
}

// Closed reports whether Close has been called.
func (w *Workspace) Closed() bool { return w.closed.Load() }

func align(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Alloc returns n bytes valid until the next reset or close.
// The contents are whatever the previous cycle left behind.
func (w *Workspace) Alloc(n int) (Region, error) {
	if n < 0 {
		return Region{}, fmt.Errorf("workspace %q: negative allocation %d", w.name, n)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return Region{}, fmt.Errorf("%w: %q", ErrWorkspaceClosed, w.name)
	}
	gen := w.generation.Load()

	size := align(n)
	if w.offset+size <= len(w.data) {
		region := Region{
			Data:       w.data[w.offset : w.offset+n : w.offset+n],
			Generation: gen,
		}
		w.offset += size
		logutil.Trace("workspace alloc", "name", w.name, "bytes", n, "offset", w.offset-size, "generation", gen)
		return region, nil
	}

	if w.cfg.Policy != SpillToHeap {
		return Region{}, fmt.Errorf("%w: %q needs %d bytes, %d of %d free",
			ErrWorkspaceExhausted, w.name, n, len(w.data)-w.offset, len(w.data))
	}
	w.spilled += size
	slog.Debug("workspace spilled to heap", "name", w.name, "bytes", n, "spilled", w.spilled)
	return Region{Data: make([]byte, n), Generation: gen, Spilled: true}, nil
}

// Reset invalidates every region handed out so far and rewinds the arena.
// If the last cycle spilled, the arena grows to fit it, up to MaxSize.
func (w *Workspace) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resetLocked()
}

func (w *Workspace) resetLocked() error {
	if w.closed.Load() {
		return fmt.Errorf("%w: %q", ErrWorkspaceClosed, w.name)
	}
	gen := w.generation.Add(1)
	w.cycles++

	demand := w.offset + w.spilled
	grow := w.spilled > 0 && len(w.data) < w.cfg.MaxSize
	w.offset = 0
	w.spilled = 0
	logutil.Trace("workspace reset", "name", w.name, "generation", gen)

	if grow {
		want := min(demand, w.cfg.MaxSize)
		if err := w.allocate(want); err != nil {
			// The reset stands; the old arena stays in place.
			return fmt.Errorf("workspace %q: grow to %d: %w", w.name, want, err)
		}
		slog.Debug("workspace grown", "name", w.name, "size", want)
	}
	return nil
}

// Enter opens a scope. Scopes nest; only leaving the outermost resets.
func (w *Workspace) Enter() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return fmt.Errorf("%w: %q", ErrWorkspaceClosed, w.name)
	}
	w.depth++
	return nil
}

// Leave closes a scope and resets the workspace when the outermost scope ends.
func (w *Workspace) Leave() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.depth == 0 {
		return fmt.Errorf("%w: %q", ErrScopeUnderflow, w.name)
	}
	w.depth--
	if w.depth > 0 {
		return nil
	}
	return w.resetLocked()
}

// Do runs fn inside a scope.
func (w *Workspace) Do(fn func() error) (err error) {
	if err := w.Enter(); err != nil {
		return err
	}
	defer func() {
		if leaveErr := w.Leave(); err == nil {
			err = leaveErr
		}
	}()
	return fn()
}

// Close invalidates every region and frees the arena. Closing twice is a no-op.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Swap(true) {
		return nil
	}
	w.generation.Add(1)
	w.offset, w.spilled, w.depth = 0, 0, 0
	slog.Debug("workspace closed", "name", w.name, "id", w.id, "cycles", w.cycles)
	return w.release()
}

// Stats returns a usage snapshot.
func (w *Workspace) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Capacity:     len(w.data),
		Used:         w.offset,
		SpilledBytes: w.spilled,
		Cycles:       w.cycles,
		Generation:   w.generation.Load(),
		Depth:        w.depth,
	}
}
