package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"synapse.app/ingest/internal/model"
)

// MemoryEventStore keeps events in process. Used by the dev server when no
// database is configured, and by tests.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*model.Event
	order  []uuid.UUID
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[uuid.UUID]*model.Event)}
}

func (m *MemoryEventStore) Insert(_ context.Context, event *model.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.EventID]; ok {
		return false, nil
	}
	m.events[event.EventID] = cloneEvent(event)
	m.order = append(m.order, event.EventID)
	return true, nil
}

func (m *MemoryEventStore) Get(_ context.Context, eventID uuid.UUID) (*model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (m *MemoryEventStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events)), nil
}

// All returns stored events in insertion order.
func (m *MemoryEventStore) All() []model.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Event, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *cloneEvent(m.events[id]))
	}
	return out
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	if e.CorrelationID != nil {
		id := *e.CorrelationID
		c.CorrelationID = &id
	}
	return &c
}
