// Package cache decorates a scheme store with an in-memory LRU of encoded
// artifacts, so repeated loads of the same scheme skip the backing store.
package cache

import (
	"context"
	"sync"

	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
	"github.com/prometheus/client_golang/prometheus"
)

// CachedStore wraps a scheme.Store with an LRU cache. Writes go through to
// the inner store before the cache is updated.
type CachedStore struct {
	inner   scheme.Store
	cache   *lruCache
	lookups *prometheus.CounterVec
}

// NewCachedStore creates a cache decorator around a store. lookups may be
// nil; otherwise it is incremented with result=hit or result=miss.
func NewCachedStore(inner scheme.Store, maxEntries int, lookups *prometheus.CounterVec) *CachedStore {
	return &CachedStore{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		lookups: lookups,
	}
}

func (c *CachedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := c.inner.Put(ctx, name, data); err != nil {
		return err
	}
	c.cache.put(name, data)
	return nil
}

func (c *CachedStore) Get(ctx context.Context, name string) ([]byte, error) {
	if data, ok := c.cache.get(name); ok {
		c.observe("hit")
		return data, nil
	}
	c.observe("miss")
	data, err := c.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	c.cache.put(name, data)
	return data, nil
}

func (c *CachedStore) observe(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// lruCache is a simple thread-safe LRU cache of artifact bytes.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
