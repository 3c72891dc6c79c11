package tle

import (
	"sync/atomic"
	"time"

	"github.com/gehiggins/RescueDecisionSystems/internal/metrics"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ElementCache holds element sets fetched during one run. It is handed to
// the Provider explicitly; there is no package-level instance.
//
// Entries are insert-if-absent: once a key is stored, later stores for the
// same key are ignored and the first value keeps being served. Concurrent
// misses for one key share a single fetch.
type ElementCache struct {
	items  *cache.Cache
	flight singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// NewElementCache creates a cache whose entries live for ttl. ttl <= 0 keeps
// entries for the life of the cache. No janitor goroutine is started;
// expired entries are ignored on read.
func NewElementCache(ttl time.Duration) *ElementCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &ElementCache{items: cache.New(ttl, 0)}
}

// Get returns copies of the sets stored under key, flagged as cache hits.
func (c *ElementCache) Get(key string) ([]ElementSet, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		c.misses.Add(1)
		metrics.RecordElementCache(false)
		return nil, false
	}
	c.hits.Add(1)
	metrics.RecordElementCache(true)
	return markHit(v.([]ElementSet)), true
}

// Add stores sets under key unless the key is already present, and returns
// whatever the cache holds for key afterwards.
func (c *ElementCache) Add(key string, sets []ElementSet) []ElementSet {
	stored := make([]ElementSet, len(sets))
	copy(stored, sets)
	if err := c.items.Add(key, stored, cache.DefaultExpiration); err != nil {
		if v, ok := c.items.Get(key); ok {
			return clone(v.([]ElementSet))
		}
	}
	return clone(stored)
}

// Do returns the sets for key, calling fetch at most once across concurrent
// callers when the key is absent. Results served without running fetch in
// the calling goroutine are flagged as cache hits.
func (c *ElementCache) Do(key string, fetch func() ([]ElementSet, error)) ([]ElementSet, error) {
	if sets, ok := c.Get(key); ok {
		return sets, nil
	}

	var fetched bool
	v, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := c.items.Get(key); ok {
			return clone(v.([]ElementSet)), nil
		}
		fetched = true
		sets, err := fetch()
		if err != nil {
			return nil, err
		}
		return c.Add(key, sets), nil
	})
	if err != nil {
		return nil, err
	}

	sets := clone(v.([]ElementSet))
	if !fetched {
		return markHit(sets), nil
	}
	return sets, nil
}

// Len is the number of stored keys, expired entries not yet overwritten included.
func (c *ElementCache) Len() int {
	return c.items.ItemCount()
}

// Stats returns hit and miss counts for Get and Do lookups.
func (c *ElementCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func clone(sets []ElementSet) []ElementSet {
	out := make([]ElementSet, len(sets))
	copy(out, sets)
	return out
}

func markHit(sets []ElementSet) []ElementSet {
	out := clone(sets)
	for i := range out {
		out[i].CacheHit = true
	}
	return out
}
