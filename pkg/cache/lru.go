// Package cache keeps recent HTTP read responses of the audit API in memory.
// Audit records are immutable, so entries only go stale when new records are
// appended; callers invalidate the cache then.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is one cached response.
type Entry struct {
	Body        []byte
	ContentType string
}

type item struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// LRUCache is a thread-safe cache with TTL and least-recently-used eviction.
// Expired entries are dropped lazily on Get.
type LRUCache struct {
	mu      sync.Mutex
	order   *list.List // front is most recently used
	items   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &LRUCache{
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for key and marks it as recently used.
func (c *LRUCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	it := el.Value.(*item)
	if c.now().After(it.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return it.entry, true
}

// Set stores e under key, evicting the least recently used entry when full.
func (c *LRUCache) Set(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item)
		it.entry, it.expiresAt = e, expires
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*item).key)
		}
	}
	c.items[key] = c.order.PushFront(&item{key: key, entry: e, expiresAt: expires})
}

// InvalidateAll removes every entry. It is a no-op on a nil cache.
func (c *LRUCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
}

// Size returns the number of entries, including expired ones not yet dropped.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts.
func (c *LRUCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
