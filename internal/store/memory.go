package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
)

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	logs      map[string][]session.Message
	snapshots *tracking.SnapshotManager
	closed    bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		logs:      make(map[string][]session.Message),
		snapshots: tracking.NewSnapshotManager(),
	}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, docID string, msg session.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.logs[docID] = append(m.logs[docID], msg)
	return nil
}

// Messages implements Store.
func (m *Memory) Messages(_ context.Context, docID string) ([]session.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Clone(m.logs[docID]), nil
}

// SaveSnapshot implements Store.
func (m *Memory) SaveSnapshot(_ context.Context, docID string, snap *tracking.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.snapshots.Put(docID, snap)
	delete(m.logs, docID)
	return nil
}

// Snapshot implements Store.
func (m *Memory) Snapshot(_ context.Context, docID string) (*tracking.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	snap, ok := m.snapshots.Get(docID)
	if !ok {
		return nil, fmt.Errorf("%w: snapshot of %s", ErrNotFound, docID)
	}
	return snap, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
