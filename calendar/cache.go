package calendar

import (
	"slices"
	"sync"
	"time"
)

// Cache holds per-subscription expanded events with lazy TTL expiry.
// A refresh replaces an entry wholesale, so readers never observe a
// partially updated subscription.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// cacheEntry is the cached expansion of one subscription's feed.
type cacheEntry struct {
	events    []Event
	updatedAt time.Time
	expiresAt time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Put replaces the subscription's entry. The entry stays readable until
// now+ttl has passed.
func (c *Cache) Put(subscriptionID string, events []Event, now time.Time, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[subscriptionID] = cacheEntry{
		events:    events,
		updatedAt: now,
		expiresAt: now.Add(ttl),
	}
}

// Events returns one subscription's cached events, or nil when the
// entry is absent or expired. Expired entries are skipped, not deleted;
// the next Put overwrites them in place.
func (c *Cache) Events(subscriptionID string, now time.Time) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[subscriptionID]
	if !ok || !now.Before(e.expiresAt) {
		return nil
	}
	return e.events
}

// UpdatedAt reports when the subscription's entry was last replaced,
// regardless of expiry.
func (c *Cache) UpdatedAt(subscriptionID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[subscriptionID]
	return e.updatedAt, ok
}

// AllEvents merges every unexpired entry, sorted by start time.
func (c *Cache) AllEvents(now time.Time) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var events []Event
	for _, e := range c.entries {
		if !now.Before(e.expiresAt) {
			continue
		}
		events = append(events, e.events...)
	}
	slices.SortFunc(events, CompareEvent)
	return events
}

// Drop removes a subscription's entry outright. Use it when the
// subscription itself is gone, not merely stale.
func (c *Cache) Drop(subscriptionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subscriptionID)
}
