package factcache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	fact Fact[V]
	gen  uint64
}

// Cache holds facts keyed by string, typically a session handle.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	group   singleflight.Group
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
	}
}

// Get returns the cached fact for key, computing it once if absent.
// Compute errors are returned and not cached.
func (c *Cache[V]) Get(key string, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if v, ok := e.fact.Get(); ok {
		c.mu.Unlock()
		return v, nil
	}
	gen := e.gen
	c.mu.Unlock()

	res, err, _ := c.group.Do(flightKey(key, gen), func() (interface{}, error) {
		v, err := compute()
		if err != nil {
			return v, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		// Drop results computed before an invalidation.
		if cur := c.entryLocked(key); cur.gen == gen {
			cur.fact = Present(v)
		}
		return v, nil
	})

	v, _ := res.(V)
	return v, err
}

// Peek returns the cached fact without computing it.
func (c *Cache[V]) Peek(key string) Fact[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.fact
	}
	return Absent[V]()
}

// Invalidate clears key so the next Get recomputes it.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key)
}

// InvalidateAll clears every cached fact.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.invalidateLocked(key)
	}
}

// Len returns the number of present facts.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.fact.IsPresent() {
			n++
		}
	}
	return n
}

func (c *Cache[V]) entryLocked(key string) *entry[V] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[V]{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache[V]) invalidateLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	e.fact = Absent[V]()
	e.gen++
}

// flightKey scopes in-flight computations to one generation so a Get issued
// after an invalidation never joins a stale computation.
func flightKey(key string, gen uint64) string {
	return fmt.Sprintf("%d\x00%s", gen, key)
}
