package history

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Entries are keyed by run ID and kept until the process exits. Returned
// entries are copies; modifying them does not affect the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Save stores a copy of entry.
func (m *MemoryStore) Save(_ context.Context, entry Entry) error {
	entry.Records = slices.Clone(entry.Records)

	m.mu.Lock()
	m.entries[entry.Summary.ID] = entry
	m.mu.Unlock()
	return nil
}

// List returns summaries ordered by start time, most recent first.
func (m *MemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	summaries := make([]Summary, 0, len(m.entries))
	for _, e := range m.entries {
		summaries = append(summaries, e.Summary)
	}
	m.mu.RUnlock()

	slices.SortFunc(summaries, func(a, b Summary) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Get returns a copy of the entry with the given ID.
func (m *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Records = slices.Clone(entry.Records)
	return entry, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
