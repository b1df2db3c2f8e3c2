// Package cache provides an in-memory TTL cache with LRU eviction and a
// background cleanup goroutine.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config controls cache behavior.
type Config struct {
	// DefaultTTL is applied when Set is called with a non-positive TTL.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired entries are swept. Non-positive
	// disables the sweeper.
	CleanupInterval time.Duration
	// MaxItems caps the number of entries; the least recently used entry is
	// evicted when the cap is reached.
	MaxItems int
	// OnEviction, if set, is called for each evicted or expired entry.
	OnEviction func(key string, value any)
}

// Cache is a thread-safe in-memory cache.
type Cache struct {
	config Config

	mu    sync.Mutex
	items map[string]*item
	order *list.List // front is most recently used

	done chan struct{}
	once sync.Once
}

type item struct {
	key       string
	value     any
	expiresAt time.Time
	element   *list.Element
}

// New creates a cache and starts its cleanup goroutine.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 1000
	}

	c := &Cache{
		config: config,
		items:  make(map[string]*item),
		order:  list.New(),
		done:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go c.janitor()
	}
	return c
}

// Get retrieves a value. Expired entries count as misses.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.removeItem(it)
		return nil, false
	}
	c.order.MoveToFront(it.element)
	return it.value, true
}

// Set stores a value. A non-positive ttl uses the default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok {
		it.value = value
		it.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(it.element)
		return
	}

	for len(c.items) >= c.config.MaxItems {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeItem(oldest.Value.(*item))
	}

	it := &item{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	it.element = c.order.PushFront(it)
	c.items[key] = it
}

// Delete removes a key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok {
		c.removeItem(it)
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		c.notifyEviction(it)
	}
	c.items = make(map[string]*item)
	c.order.Init()
}

// Size returns the current number of entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the cleanup goroutine. The cache stays usable but expired
// entries are then only removed lazily on Get.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Cache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []*item
	for _, it := range c.items {
		if now.After(it.expiresAt) {
			expired = append(expired, it)
		}
	}
	for _, it := range expired {
		c.removeItem(it)
	}
}

// removeItem must be called with the lock held.
func (c *Cache) removeItem(it *item) {
	c.order.Remove(it.element)
	delete(c.items, it.key)
	c.notifyEviction(it)
}

func (c *Cache) notifyEviction(it *item) {
	if c.config.OnEviction != nil {
		c.config.OnEviction(it.key, it.value)
	}
}
