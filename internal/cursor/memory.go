package cursor

import (
	"context"
	"sync"
)

// MemoryBackend keeps cursors in process memory. State is lost on restart.
type MemoryBackend struct {
	mu        sync.RWMutex
	positions map[Key]Position
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{positions: make(map[Key]Position)}
}

func (m *MemoryBackend) Load(_ context.Context, key Key) (Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[key]
	return pos, ok, nil
}

func (m *MemoryBackend) Save(_ context.Context, key Key, pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[key] = pos
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, key)
	return nil
}

func (m *MemoryBackend) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = make(map[Key]Position)
	return nil
}
