package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droid-bg/Outlook-MCP-Server/internal/model"
)

func TestCacheEvictsOldestCreated(t *testing.T) {
	c := newResultCache()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	for i := 0; i < cacheCapacity; i++ {
		c.put(fmt.Sprintf("key-%d", i), []*model.MailRecord{})
		current = current.Add(time.Second)
	}

	// One over capacity drops the oldest entry, not the newest.
	c.put("overflow", []*model.MailRecord{})
	_, ok := c.get("key-0")
	assert.False(t, ok)
	_, ok = c.get("key-1")
	assert.True(t, ok)
	_, ok = c.get("overflow")
	assert.True(t, ok)
	assert.Len(t, c.entries, cacheCapacity)
}

func TestCacheExpiredEntryRemoved(t *testing.T) {
	c := newResultCache()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.put("key", []*model.MailRecord{{Subject: "x"}})
	current = current.Add(cacheTTL)

	_, ok := c.get("key")
	require.False(t, ok)
	assert.Empty(t, c.entries)
}

func TestCacheClear(t *testing.T) {
	c := newResultCache()
	c.put("key", nil)
	c.clear()
	_, ok := c.get("key")
	assert.False(t, ok)
}

func TestCacheKeyFormat(t *testing.T) {
	assert.Equal(t, "invoice_true_false_50", cacheKey("invoice", true, false, 50))
}
