package analyzer

import (
	"testing"
	"time"
)

func TestCacheHitOnRepeatLookup(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Put("example.com", EngineStatic, []Engine{EngineDynamic})

	if _, ok := c.Get("example.com"); !ok {
		t.Fatal("expected first lookup to hit")
	}
	if c.Hits() != 1 {
		t.Fatalf("expected 1 hit, got %d", c.Hits())
	}
}

func TestCacheMissForUnknownKey(t *testing.T) {
	c := NewCache(10, time.Hour)
	if _, ok := c.Get("unknown.com"); ok {
		t.Fatal("expected miss for unknown key")
	}
	if c.Misses() != 1 {
		t.Fatalf("expected 1 miss, got %d", c.Misses())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put("a.com", EngineStatic, nil)
	c.Put("b.com", EngineStatic, nil)
	c.Get("a.com") // a.com now most-recently-used
	c.Put("c.com", EngineStatic, nil)

	if _, ok := c.Get("b.com"); ok {
		t.Fatal("expected b.com to be evicted as least recently used")
	}
	if _, ok := c.Get("a.com"); !ok {
		t.Fatal("expected a.com to survive eviction")
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := NewCache(10, 5*time.Millisecond)
	c.Put("example.com", EngineStatic, nil)
	time.Sleep(15 * time.Millisecond)

	if _, ok := c.Get("example.com"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Put("example.com", EngineStatic, nil)
	c.Invalidate("example.com")

	if _, ok := c.Get("example.com"); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}
