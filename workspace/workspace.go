// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package workspace provides scoped memory arenas for short-lived buffers.
//
// Buffers created in a workspace become stale when it is reset or closed;
// using them afterwards returns buffer.ErrStaleBuffer.
//
// Example:
//
//	ws, err := workspace.New("step", workspace.DefaultConfig())
//	err = ws.Do(func() error {
//	    tmp, err := f.CreateInWorkspace(buffer.Float, 1024, true, ws)
//	    ...
//	}) // leaving the outermost scope resets ws
package workspace

import (
	"github.com/born-ml/ndbuf/internal/workspace"
)

// Workspace is a bump-allocated arena with generation tracking.
type Workspace = workspace.Workspace

// Config controls workspace sizing and backing memory.
type Config = workspace.Config

// Policy decides what happens when an allocation does not fit.
type Policy = workspace.Policy

// Exhaustion policies.
const (
	FailOnExhaustion = workspace.FailOnExhaustion
	SpillToHeap      = workspace.SpillToHeap
)

// Region is memory handed out by Workspace.Alloc.
type Region = workspace.Region

// Stats is a snapshot of workspace usage.
type Stats = workspace.Stats

// Manager keeps named workspaces.
type Manager = workspace.Manager

// Errors.
var (
	ErrWorkspaceClosed    = workspace.ErrWorkspaceClosed
	ErrWorkspaceExhausted = workspace.ErrWorkspaceExhausted
	ErrScopeUnderflow     = workspace.ErrScopeUnderflow
)

// New creates a workspace.
func New(name string, cfg Config) (*Workspace, error) { return workspace.New(name, cfg) }

// DefaultConfig reads sizing and policy from the environment.
func DefaultConfig() Config { return workspace.DefaultConfig() }

// NewManager returns an empty manager.
func NewManager() *Manager { return workspace.NewManager() }
