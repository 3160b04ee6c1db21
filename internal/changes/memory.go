package changes

import (
	"context"
	"sync"
)

// MemoryStore is an in-process HashStore.
type MemoryStore struct {
	mu     sync.Mutex
	hashes map[[2]string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hashes: make(map[[2]string]string)}
}

func (m *MemoryStore) GetHash(_ context.Context, provider, externalID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[[2]string{provider, externalID}]
	return h, ok, nil
}

func (m *MemoryStore) PutHash(_ context.Context, provider, externalID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[[2]string{provider, externalID}] = hash
	return nil
}

func (m *MemoryStore) DeleteHash(_ context.Context, provider, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, [2]string{provider, externalID})
	return nil
}

func (m *MemoryStore) DeleteHashes(_ context.Context, provider string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.hashes {
		if provider == "" || k[0] == provider {
			delete(m.hashes, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored hashes.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes)
}
