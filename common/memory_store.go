package common

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const cleanupInterval = 32 * time.Minute

var _ SessionStore = (*MemoryStore)(nil)

// MemoryStore is a process-local SessionStore. Entries expire after the ttl given to Set.
type MemoryStore struct {
	cache *cache.Cache
	key   string
}

// NewMemoryStore returns a MemoryStore keeping the credential under key.
// An empty key means AccessTokenKey.
func NewMemoryStore(key string) *MemoryStore {
	if key == "" {
		key = AccessTokenKey
	}
	return &MemoryStore{
		cache: cache.New(DefaultTokenTTL, cleanupInterval),
		key:   key,
	}
}

func (m *MemoryStore) Get(_ context.Context) (string, bool, error) {
	value, found := m.cache.Get(m.key)
	if !found {
		return "", false, nil
	}
	token, ok := value.(string)
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (m *MemoryStore) Set(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	m.cache.Set(m.key, token, ttl)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.cache.Delete(m.key)
	return nil
}
