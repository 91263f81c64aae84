package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process LRU implementing BlockingBackend. Entries
// also expire by TTL so a long-lived process does not serve stale engine
// output past the configured cache age.
type MemoryBackend struct {
	entries    *lru.Cache[string, memoryEntry]
	defaultTTL time.Duration
}

// NewMemoryBackend creates a backend bounded to size entries.
func NewMemoryBackend(size int, defaultTTL time.Duration) (*MemoryBackend, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{entries: entries, defaultTTL: defaultTTL}, nil
}

func (m *MemoryBackend) Get(key string) ([]byte, bool) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryBackend) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.entries.Add(key, memoryEntry{value: value, expiresAt: expiresAt})
}

func (m *MemoryBackend) Delete(key string) {
	m.entries.Remove(key)
}
