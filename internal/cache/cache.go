// Package cache provides a bounded LRU cache with TTL for the read-side
// summary, trend and dashboard queries. Entries are keyed by a structured
// (operation, MC, hub) key so both scorers can invalidate an MC's entries
// after a successful write.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Key identifies one cached query result.
type Key struct {
	Operation string
	MCCode    string
	HubID     string
}

type entry struct {
	key       Key
	value     interface{}
	expiresAt time.Time
}

// Cache is a thread-safe LRU cache with per-entry TTL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[Key]*list.Element

	hits   uint64
	misses uint64
}

// New creates a cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 128
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[Key]*list.Element, capacity),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if time.Now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set stores a value, evicting the least recently used entry at capacity.
func (c *Cache) Set(key Key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	elem := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem
}

// InvalidateMC drops every entry belonging to the MC, regardless of
// operation or hub. Called by the scorers after each successful write so
// cached summaries never outlive the data they summarize.
func (c *Cache) InvalidateMC(mcCode string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if key.MCCode == mcCode {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[Key]*list.Element, c.capacity)
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit/miss counters and occupancy.
func (c *Cache) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]interface{}{
		"capacity":    c.capacity,
		"entries":     c.order.Len(),
		"hits":        c.hits,
		"misses":      c.misses,
		"ttl_seconds": c.ttl.Seconds(),
	}
}

// caller must hold c.mu
func (c *Cache) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.items, ent.key)
}
