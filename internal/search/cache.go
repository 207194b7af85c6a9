package search

import (
	"fmt"
	"time"

	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
)

// Cache TTL and capacity are deliberate constants, not configuration.
const (
	cacheTTL      = time.Hour
	cacheCapacity = 100
)

type cacheEntry struct {
	records []*model.MailRecord
	created time.Time
}

// resultCache maps a search signature to a finished result set. Entries
// are never mutated after insertion; a miss replaces the whole entry.
// Owned by the executor worker, so no locking.
type resultCache struct {
	entries map[string]*cacheEntry
	now     func() time.Time
}

func newResultCache() *resultCache {
	return &resultCache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(text string, includePersonal, includeShared bool, maxResults int) string {
	return fmt.Sprintf("%s_%t_%t_%d", text, includePersonal, includeShared, maxResults)
}

func (c *resultCache) get(key string) ([]*model.MailRecord, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.created) >= cacheTTL {
		delete(c.entries, key)
		return nil, false
	}
	return entry.records, true
}

func (c *resultCache) put(key string, records []*model.MailRecord) {
	c.entries[key] = &cacheEntry{records: records, created: c.now()}

	// Over capacity: drop the oldest-created entry.
	if len(c.entries) > cacheCapacity {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.created.Before(oldest) {
				oldestKey = k
				oldest = e.created
			}
		}
		delete(c.entries, oldestKey)
	}
}

func (c *resultCache) clear() {
	c.entries = make(map[string]*cacheEntry)
}
