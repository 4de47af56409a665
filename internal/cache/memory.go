package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"solana-activity-engine/internal/domain"
)

// MemoryOptions configures MemoryCache.
type MemoryOptions struct {
	// Capacity is the maximum number of entries. Least recently used entries are evicted.
	Capacity int
	// TTL is how long an entry stays valid after Put.
	TTL time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time
}

// DefaultMemoryOptions returns the defaults used by the server.
func DefaultMemoryOptions() MemoryOptions {
	return MemoryOptions{
		Capacity: 1024,
		TTL:      10 * time.Minute,
	}
}

type memoryEntry struct {
	info      domain.TokenInfo
	expiresAt time.Time
}

// MemoryCache is an in-process TTL + LRU TokenInfoCache.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

// NewMemoryCache creates a memory cache. Zero option values fall back to defaults.
func NewMemoryCache(opts MemoryOptions) *MemoryCache {
	def := DefaultMemoryOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MemoryCache{
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		now:      opts.Now,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

var _ TokenInfoCache = (*MemoryCache)(nil)

// Get returns the cached entry and marks it most recently used.
func (c *MemoryCache) Get(_ context.Context, mint string) (*domain.TokenInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[mint]
	if !ok {
		return nil, ErrNotFound
	}
	entry := el.Value.(*memoryEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(el)
		return nil, ErrNotFound
	}
	c.order.MoveToFront(el)

	info := entry.info
	return &info, nil
}

// Put stores info and evicts the least recently used entry when over capacity.
func (c *MemoryCache) Put(_ context.Context, info domain.TokenInfo) error {
	if info.Mint == "" {
		return errors.New("token info: empty mint")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[info.Mint]; ok {
		el.Value = &memoryEntry{info: info, expiresAt: expiresAt}
		c.order.MoveToFront(el)
		return nil
	}

	c.items[info.Mint] = c.order.PushFront(&memoryEntry{info: info, expiresAt: expiresAt})
	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes mint from the cache.
func (c *MemoryCache) Delete(_ context.Context, mint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[mint]; ok {
		c.removeElement(el)
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) removeElement(el *list.Element) {
	entry := c.order.Remove(el).(*memoryEntry)
	delete(c.items, entry.info.Mint)
}
