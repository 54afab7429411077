// Package cache memoises transport responses by request identity and
// collapses concurrent identical requests into one transport call.
//
// Entries never expire; they live until Invalidate removes them. Failed calls
// are never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/txn-review/approvals/src/client/transport"
)

// ErrFetchFailed wraps every transport failure surfaced by Fetch.
var ErrFetchFailed = errors.New("cache: fetch failed")

// Option mutates cache configuration.
type Option func(*Cache)

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the cache counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.registerer = reg
	}
}

type entry struct {
	resource string
	payload  json.RawMessage
}

// flight tracks one in-progress transport call. A flight marked stale by
// Invalidate still answers its waiters but does not populate the cache.
type flight struct {
	resource string
	stale    bool
}

// Cache is safe for concurrent use.
type Cache struct {
	transport  transport.Transport
	logger     *slog.Logger
	registerer prometheus.Registerer
	requests   *prometheus.CounterVec

	group singleflight.Group

	mu       sync.RWMutex
	entries  map[string]entry
	inflight map[string]*flight
}

// New creates a cache in front of t.
func New(t transport.Transport, options ...Option) *Cache {
	c := &Cache{
		transport: t,
		logger:    slog.Default(),
		entries:   make(map[string]entry),
		inflight:  make(map[string]*flight),
	}
	for _, option := range options {
		option(c)
	}
	c.requests = newRequestCounter(c.registerer, c.logger)
	return c
}

// Key returns the canonical identity of a request. Params are encoded as JSON
// with sorted keys, so logically equal parameter sets share a key no matter how
// they were built. Nil and empty params are equivalent.
func Key(resource string, params transport.Params) (string, error) {
	if len(params) == 0 {
		return resource + "@{}", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache: encoding params for %s: %w", resource, err)
	}
	return resource + "@" + string(raw), nil
}

// Fetch returns the cached payload for (resource, params) or performs the
// transport call and caches its result. Callers must treat the returned
// payload as read-only.
//
// A caller whose ctx ends stops waiting, but the underlying call keeps running
// for any other waiters and still populates the cache.
func (c *Cache) Fetch(ctx context.Context, resource string, params transport.Params) (json.RawMessage, error) {
	key, err := Key(resource, params)
	if err != nil {
		return nil, err
	}

	if payload, ok := c.lookup(key); ok {
		c.requests.WithLabelValues(resource, "hit").Inc()
		c.logger.DebugContext(ctx, "cache hit", "key", key)
		return payload, nil
	}

	executed := false
	ch := c.group.DoChan(key, func() (any, error) {
		executed = true
		return c.call(context.WithoutCancel(ctx), key, resource, params)
	})

	select {
	case res := <-ch:
		if !executed {
			c.requests.WithLabelValues(resource, "shared").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) call(ctx context.Context, key, resource string, params transport.Params) (json.RawMessage, error) {
	// A flight that finished between our lookup and DoChan may already have
	// stored the entry.
	if payload, ok := c.lookup(key); ok {
		c.requests.WithLabelValues(resource, "hit").Inc()
		return payload, nil
	}

	f := &flight{resource: resource}
	c.mu.Lock()
	c.inflight[key] = f
	c.mu.Unlock()

	c.requests.WithLabelValues(resource, "miss").Inc()
	c.logger.DebugContext(ctx, "cache miss", "key", key)

	payload, err := c.transport.Call(ctx, resource, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[key] == f {
		delete(c.inflight, key)
	}

	if err != nil {
		c.requests.WithLabelValues(resource, "error").Inc()
		c.logger.ErrorContext(ctx, "fetch failed", "resource", resource, "key", key, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, resource, err)
	}
	if !f.stale {
		c.entries[key] = entry{resource: resource, payload: payload}
	}
	return payload, nil
}

func (c *Cache) lookup(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.payload, ok
}

// Invalidate drops cached entries for the named resources, or every entry when
// none are named. Calls already in flight for those resources are detached:
// their waiters still get the result, but it is not cached and new callers
// start a fresh call.
func (c *Cache) Invalidate(resources ...string) {
	match := func(resource string) bool {
		if len(resources) == 0 {
			return true
		}
		for _, r := range resources {
			if r == resource {
				return true
			}
		}
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if match(e.resource) {
			delete(c.entries, key)
			removed++
		}
	}
	for key, f := range c.inflight {
		if match(f.resource) {
			f.stale = true
			delete(c.inflight, key)
			c.group.Forget(key)
		}
	}
	c.logger.Debug("cache invalidated", "resources", resources, "removed", removed)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
