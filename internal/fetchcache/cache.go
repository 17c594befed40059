// Package fetchcache owns the fetch-once contract: the first request for a
// key invokes the fetch function exactly once, every later request within
// the same process is served from memory, and cleanup removes the durable
// entry.
package fetchcache

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tyfong/aiparserpipeline/internal/cachekey"
	"github.com/tyfong/aiparserpipeline/internal/metrics"
	"github.com/tyfong/aiparserpipeline/internal/storage/atomic"
)

// FetchFunc retrieves the content for one key. It is invoked at most once
// per key per Cache.
type FetchFunc func(ctx context.Context) ([]byte, error)

// entry records the terminal outcome of a fetch. A nil err means Cached;
// a non-nil err means Failed and later callers get the same error back
// without re-fetching.
type entry struct {
	content []byte
	err     error
}

// Cache is the per-process fetch-once cache. Safe for concurrent use.
type Cache struct {
	store  *atomic.Store
	logger *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	entries map[cachekey.Key]*entry
}

// New creates a Cache persisting entries through store.
func New(store *atomic.Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:   store,
		logger:  logger,
		entries: make(map[cachekey.Key]*entry),
	}
}

// GetOrFetch returns the cached content for key, fetching it first if this
// is the first request. Concurrent callers for one key share a single
// fetch. A failed fetch is recorded: the error is returned to every caller
// and the key is not fetched again, but other keys are unaffected.
func (c *Cache) GetOrFetch(ctx context.Context, key cachekey.Key, fetch FetchFunc) ([]byte, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}

	if e := c.lookup(key); e != nil {
		metrics.ObserveCacheLookup("hit")
		return e.content, e.err
	}

	v, err, _ := c.group.Do(string(key), func() (any, error) {
		// Double-check under the flight: a racing caller may have
		// completed the fetch while we waited.
		if e := c.lookup(key); e != nil {
			return e.content, e.err
		}
		metrics.ObserveCacheLookup("miss")

		content, fetchErr := fetch(ctx)
		if fetchErr != nil {
			// Persist an empty marker so independent consumers of this
			// key can observe the attempt without re-fetching.
			if werr := c.store.Write(key.Filename(), nil); werr != nil {
				c.logger.Warn("failure marker write failed",
					zap.String("key", string(key)), zap.Error(werr))
			}
			c.record(key, &entry{err: fmt.Errorf("fetch %s: %w", key, fetchErr)})
			return nil, fmt.Errorf("fetch %s: %w", key, fetchErr)
		}

		if werr := c.store.Write(key.Filename(), content); werr != nil {
			// The in-memory copy still serves this process.
			c.logger.Warn("cache entry write failed",
				zap.String("key", string(key)), zap.Error(werr))
		}
		c.record(key, &entry{content: content})
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	content, ok := v.([]byte)
	if !ok && v != nil {
		return nil, fmt.Errorf("unexpected cache value type %T", v)
	}
	return content, nil
}

// Release deletes the durable entry for key and drops the in-memory
// reference. Safe to call repeatedly and for keys never fetched.
func (c *Cache) Release(key cachekey.Key) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if err := c.store.Delete(key.Filename()); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// ReleaseAll releases every key this cache has seen. Delete failures are
// logged and do not stop the sweep.
func (c *Cache) ReleaseAll() {
	c.mu.Lock()
	keys := make([]cachekey.Key, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	for _, key := range keys {
		if err := c.Release(key); err != nil {
			c.logger.Warn("cache entry release failed",
				zap.String("key", string(key)), zap.Error(err))
		}
	}
}

// Len reports the number of keys currently held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(key cachekey.Key) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

func (c *Cache) record(key cachekey.Key, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}
