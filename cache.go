package blogcore

import (
	"sync"
	"time"
)

// categoryCache is an in-memory TTL cache of the category list, which every
// public page reads for its sidebar. Mutating handlers invalidate it.
type categoryCache struct {
	mu      sync.RWMutex
	cats    []Category
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

func newCategoryCache(s *Store, ttl time.Duration) *categoryCache {
	return &categoryCache{store: s, ttl: ttl}
}

func (c *categoryCache) valid() bool {
	return c.cats != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *categoryCache) Invalidate() {
	c.mu.Lock()
	c.cats = nil
	c.mu.Unlock()
}

// List returns the cached categories, reloading from the store when stale.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *categoryCache) List() ([]Category, error) {
	c.mu.RLock()
	if c.valid() {
		cats := c.cats
		c.mu.RUnlock()
		return cats, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.cats, nil
	}
	cats, err := c.store.ListCategories()
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []Category{}
	}
	c.cats = cats
	c.fetched = time.Now()
	return cats, nil
}
