package workspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Manager keeps named workspaces. It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{workspaces: make(map[string]*Workspace)}
}

// GetOrCreate returns the open workspace called name, creating it with cfg if
// it does not exist or was closed.
func (m *Manager) GetOrCreate(name string, cfg Config) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workspaces[name]; ok && !w.Closed() {
		return w, nil
	}
	w, err := New(name, cfg)
	if err != nil {
		return nil, err
	}
	m.workspaces[name] = w
	return w, nil
}

// Get returns the workspace called name.
func (m *Manager) Get(name string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[name]
	return w, ok
}

// Names returns the names of all tracked workspaces, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.workspaces))
	for name := range m.workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Destroy closes and forgets the workspace called name.
func (m *Manager) Destroy(name string) error {
	m.mu.Lock()
	w, ok := m.workspaces[name]
	delete(m.workspaces, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("workspace %q not found", name)
	}
	return w.Close()
}

// CloseAll closes and forgets every workspace.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	m.mu.Unlock()

	var errs []error
	for _, w := range all {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close workspace %q: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}
