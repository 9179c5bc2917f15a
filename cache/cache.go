// Package cache provides a bounded in-memory key/value store with per-entry
// TTL and LRU, LFU or FIFO eviction, together with the service-level cache
// managers built on top of it.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

// Cache is safe for concurrent use. Iteration order, and therefore the
// eviction tie-break, is insertion order; overwriting a key keeps its slot.
type Cache[T any] struct {
	config Config
	clock  Clock
	logger types.Logger
	name   string

	mu          sync.Mutex
	items       map[string]*list.Element
	order       *list.List
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	stopSweep   chan struct{}
	sweepDone   chan struct{}
	disposeOnce sync.Once
}

func New[T any](config Config, opts ...Option) (*Cache[T], error) {
	resolved, err := config.resolve()
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache[T]{
		config:    resolved,
		clock:     o.clock,
		logger:    o.logger,
		name:      o.name,
		items:     make(map[string]*list.Element, resolved.MaxSize),
		order:     list.New(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go c.runSweeper(resolved.SweepInterval)

	return c, nil
}

// Set stores value under key. A ttl <= 0 means the configured default.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.removeExpiredLocked(now, false)

	// Capacity is checked before the overwrite as well, so a full store
	// gives up its strategy victim even when key is already present.
	for len(c.items) >= c.config.MaxSize {
		if !c.evictLocked() {
			break
		}
	}

	if el, exists := c.items[key]; exists {
		entry := el.Value.(*Entry[T])
		entry.Value = value
		entry.InsertedAt = now
		entry.ExpiresAt = now.Add(ttl)
		entry.AccessCount = 0
		entry.LastAccessedAt = now
		return nil
	}

	c.items[key] = c.order.PushBack(&Entry[T]{
		Key:            key,
		Value:          value,
		InsertedAt:     now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
	})

	return nil
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T

	el, exists := c.items[key]
	if !exists {
		c.misses++
		return zero, false
	}

	now := c.clock()
	entry := el.Value.(*Entry[T])
	if entry.expired(now) {
		c.removeElementLocked(el)
		c.expirations++
		c.misses++
		return zero, false
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	c.hits++

	return entry.Value, true
}

// Has reports whether key holds a live entry without touching hit/miss
// counters or access metadata.
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.items[key]
	if !exists {
		return false
	}

	if el.Value.(*Entry[T]).expired(c.clock()) {
		c.removeElementLocked(el)
		c.expirations++
		return false
	}

	return true
}

func (c *Cache[T]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.items[key]
	if !exists {
		return false
	}

	c.removeElementLocked(el)
	return true
}

// Clear drops every entry and resets all counters.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.config.MaxSize)
	c.order.Init()
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.expirations = 0
}

// GetOrSet returns the live value for key or stores the factory result.
// The lock is not held while factory runs, so concurrent callers for the
// same key may each call their factory; the last Set wins. Factory errors
// are returned as is and nothing is stored.
func (c *Cache[T]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	var zero T

	if key == "" {
		return zero, types.ErrCacheKeyEmpty
	}

	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := factory(ctx)
	if err != nil {
		return zero, err
	}

	if err := c.Set(key, value, ttl); err != nil {
		return zero, err
	}

	return value, nil
}

// Keys lists live keys in iteration order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*Entry[T])
		if !entry.expired(now) {
			keys = append(keys, entry.Key)
		}
	}

	return keys
}

func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        len(c.items),
		HitRate:     hitRate(c.hits, c.misses),
	}
}

func (c *Cache[T]) Config() Config {
	return c.config
}

// DeleteExpired runs the periodic sweep immediately and returns the number
// of removed entries.
func (c *Cache[T]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeExpiredLocked(c.clock(), true)
}

// Dispose stops the background sweeper. It is safe to call more than once.
func (c *Cache[T]) Dispose() {
	c.disposeOnce.Do(func() {
		close(c.stopSweep)
		<-c.sweepDone
		c.logger.Debug("Cache disposed", zap.String("cache", c.name))
	})
}

// removeExpiredLocked drops expired entries. inclusive also drops entries
// expiring exactly at now, which is what the sweeper does.
func (c *Cache[T]) removeExpiredLocked(now time.Time, inclusive bool) int {
	removed := 0

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*Entry[T])

		if (inclusive && entry.due(now)) || (!inclusive && entry.expired(now)) {
			c.removeElementLocked(el)
			removed++
		}

		el = next
	}

	c.expirations += uint64(removed)
	return removed
}

func (c *Cache[T]) evictLocked() bool {
	var victim *list.Element
	var victimEntry *Entry[T]

	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*Entry[T])
		if victim == nil || evictsBefore(c.config.Strategy, entry, victimEntry) {
			victim = el
			victimEntry = entry
		}
	}

	if victim == nil {
		return false
	}

	c.removeElementLocked(victim)
	c.evictions++

	c.logger.Debug("Cache entry evicted",
		zap.String("cache", c.name),
		zap.String("key", victimEntry.Key),
		zap.Stringer("strategy", c.config.Strategy))

	return true
}

func (c *Cache[T]) removeElementLocked(el *list.Element) {
	entry := c.order.Remove(el).(*Entry[T])
	delete(c.items, entry.Key)
}
