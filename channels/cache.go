package channels

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/francisco-leal/ModBot/rules"
)

// Cache holds recently loaded channels so cast delivery does not hit the
// store for every cast. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached channel for key, or false on a miss or expiry
	Get(key string) (*rules.ModeratedChannel, bool)

	// Set stores a channel under key
	Set(key string, channel *rules.ModeratedChannel)

	// Invalidate drops every entry, forcing a reload on the next Get
	Invalidate()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// Size is the maximum number of cached entries
	Size int

	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (invalidation on mutation only).
	TTL time.Duration
}

// DefaultCacheConfig returns the cache settings used when none are configured
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size: 10000,
		TTL:  5 * time.Minute,
	}
}

// LRUCache is a Cache backed by an expirable LRU
type LRUCache struct {
	lru *expirable.LRU[string, *rules.ModeratedChannel]
}

// NewLRUCache creates a new in-memory channel cache
func NewLRUCache(config CacheConfig) *LRUCache {
	if config.Size <= 0 {
		config.Size = DefaultCacheConfig().Size
	}
	return &LRUCache{
		lru: expirable.NewLRU[string, *rules.ModeratedChannel](config.Size, nil, config.TTL),
	}
}

// Get returns a copy of the cached channel
func (c *LRUCache) Get(key string) (*rules.ModeratedChannel, bool) {
	channel, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return clone(channel), true
}

// Set stores a copy of channel
func (c *LRUCache) Set(key string, channel *rules.ModeratedChannel) {
	c.lru.Add(key, clone(channel))
}

// Invalidate clears the cache
func (c *LRUCache) Invalidate() {
	c.lru.Purge()
}
