package cache

import (
	"context"
	"sync"
	"time"

	"github.com/astro-web3/oauthgate/internal/domain/token"
)

// MemoryStore keeps entries in process. Expired entries stay until the
// cache finds and deletes them.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]token.Claims
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]token.Claims)}
}

func (m *MemoryStore) Get(_ context.Context, apiKey string) (token.Claims, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	claims, ok := m.entries[apiKey]
	if !ok {
		return nil, false, nil
	}
	return claims.Clone(), true, nil
}

func (m *MemoryStore) Set(_ context.Context, apiKey string, claims token.Claims, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[apiKey] = claims.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, apiKey)
	return nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries), nil
}

func (m *MemoryStore) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	m.entries = make(map[string]token.Claims)
	return n, nil
}
