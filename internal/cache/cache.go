package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key fingerprints one read operation (operation name plus parameters)
type Key string

// NewKey builds a cache key from an operation name and its parameters
func NewKey(op string, params ...string) Key {
	if len(params) == 0 {
		return Key(op)
	}
	return Key(op + "|" + strings.Join(params, "|"))
}

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a request-keyed, TTL'd read cache in front of the REST API.
// Concurrent callers for one key share a single in-flight fetch. Mutations
// and push events funnel through Invalidate; a fetch that was in flight when
// an invalidation arrived still returns its (pre-invalidation) result to its
// callers but is never stored, and readers arriving after the invalidation
// start a fresh fetch rather than joining the stale one.
type Cache struct {
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[Key]entry
	epoch   uint64

	group singleflight.Group
}

// New creates a cache with the given entry TTL
func New(ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[Key]entry),
	}
}

// Fetch returns the cached value for key when fresh, otherwise runs fn and
// caches its result. Errors are returned to every waiting caller and never
// cached.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Since(e.storedAt) < c.ttl {
		c.mu.Unlock()
		return e.value.(T), nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	// The flight key carries the epoch: readers started after an
	// invalidation never join a pre-invalidation fetch.
	flight := strconv.FormatUint(epoch, 10) + "|" + string(key)
	v, err, shared := c.group.Do(flight, func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		c.logger.Debug("Shared in-flight fetch", zap.String("key", string(key)))
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.entries[key] = entry{value: v, storedAt: time.Now()}
	}
	c.mu.Unlock()

	return v.(T), nil
}

// Invalidate removes every cached entry whose key starts with one of the
// given prefixes and marks any in-flight fetch result uncacheable
func (c *Cache) Invalidate(prefixes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	removed := 0
	for k := range c.entries {
		for _, prefix := range prefixes {
			if strings.HasPrefix(string(k), prefix) {
				delete(c.entries, k)
				removed++
				break
			}
		}
	}

	if removed > 0 {
		c.logger.Debug("Cache invalidated",
			zap.Strings("prefixes", prefixes),
			zap.Int("removed", removed),
		)
	}
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
