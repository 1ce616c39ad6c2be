package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent entries in a fixed-size ring.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	next    int
	full    bool
}

// NewMemoryStore creates a store retaining at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{entries: make([]*Entry, capacity)}
}

func (m *MemoryStore) Record(_ context.Context, e *Entry) error {
	cp := *e
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = &cp
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*Entry, error) {
	limit = clampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.next
	if m.full {
		size = len(m.entries)
	}
	if limit > size {
		limit = size
	}

	result := make([]*Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.next - 1 - i + len(m.entries)) % len(m.entries)
		cp := *m.entries[idx]
		result = append(result, &cp)
	}
	return result, nil
}

// Len returns the number of retained entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.entries)
	}
	return m.next
}
