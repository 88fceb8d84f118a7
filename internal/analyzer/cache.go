package analyzer

import (
	"container/list"
	"sync"
	"time"
)

// Decision is a cached engine-selection outcome for one origin.
type Decision struct {
	Primary   Engine
	Fallbacks []Engine
	cachedAt  time.Time
}

type cacheEntry struct {
	key      string
	decision Decision
}

// Cache is a bounded, TTL-aware LRU of engine-selection decisions keyed
// by origin, so repeat requests to the same site skip re-running the
// detectors (spec §4.7). Grounded on the ported test suite's
// EngineSelectionCache, extended with an eviction bound and TTL since the
// original used an unbounded HashMap.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	index    map[string]*list.Element

	hits   int64
	misses int64
}

// NewCache builds a Cache holding at most capacity decisions, each valid
// for ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached decision for key if present and unexpired.
func (c *Cache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return Decision{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Since(entry.decision.cachedAt) > c.ttl {
		c.ll.Remove(el)
		delete(c.index, key)
		c.misses++
		return Decision{}, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	return entry.decision, true
}

// Put stores primary/fallbacks for key, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Put(key string, primary Engine, fallbacks []Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	decision := Decision{Primary: primary, Fallbacks: fallbacks, cachedAt: time.Now()}

	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).decision = decision
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, decision: decision})
	c.index[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Invalidate drops key's cached decision, e.g. after a misclassification
// signal (an engine the cache recommended failed extraction).
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.ll.Remove(el)
		delete(c.index, key)
	}
}

// Hits returns the number of cache hits observed so far.
func (c *Cache) Hits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Misses returns the number of cache misses observed so far.
func (c *Cache) Misses() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

// Len returns the number of decisions currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
