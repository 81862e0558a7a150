package credstore

import (
	"sync"
	"time"
)

const (
	// Successful reads (including "secret absent") stay fresh for a
	// long window; the underlying stores are slow and stable.
	successTTL = 5 * time.Minute
	// Error reads expire quickly so a locked or denied store is
	// retried shortly after it unlocks, without hammering it on every
	// call in between.
	errorTTL = 10 * time.Second
)

type cacheEntry struct {
	creds    FullCredentials
	storedAt time.Time
	isError  bool
}

// credCache is a process-wide table of credential read results keyed
// by the storage-location-derived string.
type credCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newCredCache() *credCache {
	return &credCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// get returns the cached credentials if the entry is still fresh.
func (c *credCache) get(key string) (FullCredentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return FullCredentials{}, false
	}

	ttl := successTTL
	if entry.isError {
		ttl = errorTTL
	}
	if c.now().Sub(entry.storedAt) >= ttl {
		delete(c.entries, key)
		return FullCredentials{}, false
	}
	return entry.creds, true
}

func (c *credCache) put(key string, creds FullCredentials, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{creds: creds, storedAt: c.now(), isError: isError}
}

func (c *credCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *credCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
