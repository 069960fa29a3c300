package testutil

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kbukum/sonify/cache"
)

// MemoryStore is an in-memory cache.Store that counts operations.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	reads   int
	writes  int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func entryKey(domain cache.Domain, key string) string {
	return string(domain) + "/" + key
}

// Read implements cache.Store.
func (m *MemoryStore) Read(_ context.Context, domain cache.Domain, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.entries[entryKey(domain, key)]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return slices.Clone(data), nil
}

// Write implements cache.Store.
func (m *MemoryStore) Write(_ context.Context, domain cache.Domain, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.entries[entryKey(domain, key)] = slices.Clone(data)
	return nil
}

// Delete implements cache.Store.
func (m *MemoryStore) Delete(_ context.Context, domain cache.Domain, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entryKey(domain, key))
	return nil
}

// Len returns the number of entries in domain.
func (m *MemoryStore) Len(domain cache.Domain) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	prefix := string(domain) + "/"
	for k := range m.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// Writes returns how many writes the store has served.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Snapshot copies the current entries.
func (m *MemoryStore) Snapshot() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.entries)
}

// Restore replaces the entries with a snapshot.
func (m *MemoryStore) Restore(snapshot map[string][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = maps.Clone(snapshot)
}

var _ cache.Store = (*MemoryStore)(nil)
