package store

import (
	"context"
	"sync"
)

// Memory is an in-process snapshot store for tests and standalone runs
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]byte

	// FailNext makes the next Save return the provided error, letting tests
	// exercise persistence-failure handling
	FailNext error
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string][]byte),
	}
}

// Save stores a copy of the snapshot
func (m *Memory) Save(_ context.Context, actorID string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}

	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	m.snapshots[actorID] = cp

	return nil
}

// Load returns a copy of the stored snapshot
func (m *Memory) Load(_ context.Context, actorID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[actorID]
	if !ok {
		return nil, ErrNotFound
	}

	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)

	return cp, nil
}

// Delete removes the stored snapshot
func (m *Memory) Delete(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snapshots, actorID)
	return nil
}
