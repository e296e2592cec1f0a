package orchestrator

import (
	"sync"
	"time"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// verdictCache memoizes arbiter verdicts by the hash of the normalized text.
// Entries expire after the configured TTL. When full, the entry with the
// oldest store time is evicted, ties broken by key, so eviction order is
// deterministic.
type verdictCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	size    int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	verdict  models.ArbiterVerdict
	storedAt time.Time
}

func newVerdictCache(cfg config.CacheConfig) *verdictCache {
	size := cfg.Size
	if size <= 0 {
		size = 4096
	}
	ttl := time.Duration(cfg.TTLMs) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &verdictCache{
		entries: make(map[string]cacheEntry),
		size:    size,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *verdictCache) get(key string) (models.ArbiterVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return models.ArbiterVerdict{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return models.ArbiterVerdict{}, false
	}
	return e.verdict, true
}

func (c *verdictCache) put(key string, v models.ArbiterVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.size {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry{verdict: v, storedAt: c.now()}
}

// evictOldest must be called with the lock held.
func (c *verdictCache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldestAt) || (e.storedAt.Equal(oldestAt) && k < oldestKey) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
