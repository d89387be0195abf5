package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Entries are retained well past their freshness TTL so they remain servable
// as degraded fallbacks when quota runs out.
const cacheRetention = 7 * 24 * time.Hour

// CacheStore is a byte-level key-value store with expiry. Implementations
// must be safe for concurrent use; writes are last-write-wins.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, retention time.Duration) error
}

// envelope wraps a cached payload with its storage time so freshness is
// decided by the gateway, not by store expiry.
type envelope struct {
	StoredAt time.Time       `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache constructs an in-process cache store.
func NewMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, retention time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(retention),
	}
	// Opportunistic prune keeps the map from growing without bound.
	if len(c.entries) > 4096 {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	return nil
}
