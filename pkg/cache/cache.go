// Package cache provides a two-level memo table: a run-scoped in-memory
// front and an optional slower back store consulted only for admitted keys.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store is a back store for a Cache.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool, error)
	Put(key K, value V) error
}

// Stats counts cache lookups.
type Stats struct {
	FrontHits uint64
	BackHits  uint64
	Misses    uint64
}

// Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	front map[K]V

	back  Store[K, V]
	admit func(K) bool

	frontHits atomic.Uint64
	backHits  atomic.Uint64
	misses    atomic.Uint64
}

// New returns a Cache. back may be nil; admit nil admits nothing.
func New[K comparable, V any](back Store[K, V], admit func(K) bool) *Cache[K, V] {
	return &Cache[K, V]{front: make(map[K]V), back: back, admit: admit}
}

func (c *Cache[K, V]) admitted(key K) bool {
	return c.back != nil && c.admit != nil && c.admit(key)
}

// Get looks key up in the front, then in the back store when the key is
// admitted. Back hits are promoted into the front.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	c.mu.RLock()
	v, ok := c.front[key]
	c.mu.RUnlock()
	if ok {
		c.frontHits.Add(1)
		return v, true, nil
	}

	if c.admitted(key) {
		v, ok, err := c.back.Get(key)
		if err != nil {
			var zero V
			return zero, false, fmt.Errorf("cache get: %w", err)
		}
		if ok {
			c.backHits.Add(1)
			c.mu.Lock()
			c.front[key] = v
			c.mu.Unlock()
			return v, true, nil
		}
	}
	c.misses.Add(1)
	var zero V
	return zero, false, nil
}

// Put stores value in the front and, for admitted keys, in the back store.
func (c *Cache[K, V]) Put(key K, value V) error {
	c.mu.Lock()
	c.front[key] = value
	c.mu.Unlock()
	if c.admitted(key) {
		if err := c.back.Put(key, value); err != nil {
			return fmt.Errorf("cache put: %w", err)
		}
	}
	return nil
}

// Len returns the number of front entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.front)
}

// Range calls fn for each front entry until fn returns false. fn must not
// call back into the cache.
func (c *Cache[K, V]) Range(fn func(K, V) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.front {
		if !fn(k, v) {
			return
		}
	}
}

// Stats returns lookup counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		FrontHits: c.frontHits.Load(),
		BackHits:  c.backHits.Load(),
		Misses:    c.misses.Load(),
	}
}

// Map is an in-memory Store.
type Map[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// NewMap returns an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

func (m *Map[K, V]) Get(key K) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	return v, ok, nil
}

func (m *Map[K, V]) Put(key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
	return nil
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}
