package stats

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
)

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get retrieves the cached record for the package.
func (m *MemoryStore) Get(_ context.Context, pkg catalog.Package) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[pkg.Identity()]
	if !ok {
		return nil, ErrNotFound{Identity: pkg.Identity()}
	}
	out := rec
	return &out, nil
}

// PutAll overwrites the entry for each record's package identity.
func (m *MemoryStore) PutAll(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		m.records[rec.Package.Identity()] = rec
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
