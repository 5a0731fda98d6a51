package apiexec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCacheTTL is how long a cached read is served without revalidation.
const DefaultCacheTTL = 5 * time.Minute

// ResponseCache caches successful reads by Key and drops them by family or
// by scope.
//
// Concurrent misses on the same key all compute; the last writer wins.
type ResponseCache struct {
	store   CacheStore
	ttl     time.Duration
	now     func() time.Time
	logger  Logger
	metrics *MetricsCollector

	// epoch moves on Purge, family generations on InvalidateFamily. A compute
	// stores its result only if neither moved while it ran.
	epoch    atomic.Uint64
	mu       sync.Mutex
	families map[string]*familyState
	scopes   map[string]struct{}
	// Entries inserted at or before purgedAt are never served, even when the
	// store failed to delete them.
	purgedAt time.Time
}

type familyState struct {
	mu    sync.Mutex
	gen   uint64
	floor time.Time
}

type generation struct {
	epoch  uint64
	family uint64
}

func NewResponseCache(store CacheStore, ttl time.Duration) *ResponseCache {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		logger:   nopLogger{},
		families: make(map[string]*familyState),
		scopes:   make(map[string]struct{}),
	}
}

// TTL returns the lifetime given to stored entries.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Store returns the backing store.
func (c *ResponseCache) Store() CacheStore {
	return c.store
}

func (c *ResponseCache) family(name string) *familyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.families[name]
	if !ok {
		f = &familyState{}
		c.families[name] = f
	}
	return f
}

// track records scope as owned by this cache so Purge and InvalidateFamily
// reach its entries.
func (c *ResponseCache) track(scope string) {
	c.mu.Lock()
	c.scopes[scope] = struct{}{}
	c.mu.Unlock()
}

func (c *ResponseCache) snapshot(f *familyState) generation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return generation{epoch: c.epoch.Load(), family: f.gen}
}

// floor is the latest instant before which entries of f are stale.
func (c *ResponseCache) floor(f *familyState) time.Time {
	c.mu.Lock()
	floor := c.purgedAt
	c.mu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.floor.After(floor) {
		floor = f.floor
	}
	return floor
}

// Get returns a live entry for key. Expired entries and entries older than
// the last invalidation of their family are dropped.
func (c *ResponseCache) Get(ctx context.Context, key Key) (*CacheEntry, bool) {
	k := key.String()
	entry, ok := c.store.Get(ctx, k)
	if !ok {
		return nil, false
	}
	if entry.Expired(c.now()) {
		_ = c.store.Delete(ctx, k)
		return nil, false
	}
	if floor := c.floor(c.family(key.Family)); !floor.IsZero() && !entry.InsertedAt.After(floor) {
		c.logger.Debug("dropping entry older than its invalidation", "key", k)
		_ = c.store.Delete(ctx, k)
		return nil, false
	}
	return entry, true
}

// GetOrCompute serves key from the cache or runs compute and stores its
// result. A failed compute is not cached and its error is returned as is.
// hit reports whether compute was skipped.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) (*CacheEntry, error)) (entry *CacheEntry, hit bool, err error) {
	c.track(key.Scope)
	if entry, ok := c.Get(ctx, key); ok {
		c.metrics.RecordCacheHit(key.Family)
		c.logger.Debug("cache hit", "key", key.String())
		return entry, true, nil
	}
	c.metrics.RecordCacheMiss(key.Family)

	f := c.family(key.Family)
	before := c.snapshot(f)

	entry, err = compute(ctx)
	if err != nil || entry == nil {
		return entry, false, err
	}

	stored := *entry
	stored.Key = key.String()
	stored.InsertedAt = c.now()
	stored.TTL = c.ttl
	// A compute that began after an invalidation must outlive its floor even
	// when the clock has not moved.
	if floor := c.floor(f); !stored.InsertedAt.After(floor) {
		stored.InsertedAt = floor.Add(time.Nanosecond)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if (generation{epoch: c.epoch.Load(), family: f.gen}) != before {
		c.logger.Debug("family invalidated during fetch, not caching", "key", stored.Key)
		return &stored, false, nil
	}
	if err := c.store.Set(ctx, &stored); err != nil {
		c.logger.Warn("cache store failed", "key", stored.Key, "error", err)
		return &stored, false, nil
	}
	if c.metrics != nil {
		c.metrics.RecordCacheSize(c.store.Len())
	}
	return &stored, false, nil
}

func (c *ResponseCache) trackedScopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	scopes := make([]string, 0, len(c.scopes))
	for s := range c.scopes {
		scopes = append(scopes, s)
	}
	return scopes
}

// InvalidateFamily drops every entry of family in the scopes this cache has
// served. Reads of the family that are in flight when it runs will not store
// their results, and entries the store fails to delete are no longer served.
func (c *ResponseCache) InvalidateFamily(ctx context.Context, family string) error {
	scopes := c.trackedScopes()
	f := c.family(family)
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	f.floor = c.now()
	c.metrics.RecordCacheInvalidation(family)

	var removed int
	var errs []error
	for _, scope := range scopes {
		n, err := c.store.DeletePrefix(ctx, familyPrefix(scope, family))
		removed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Error("cache invalidation failed", "family", family, "error", err)
		return err
	}
	c.logger.Debug("cache family invalidated", "family", family, "removed", removed)
	return nil
}

// Purge drops the entries of every scope this cache has served, e.g. when the
// session owner changes. Entries of other scopes in a shared store survive.
func (c *ResponseCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.families {
		f.mu.Lock()
		defer f.mu.Unlock()
	}

	c.epoch.Add(1)
	c.purgedAt = c.now()

	var errs []error
	for scope := range c.scopes {
		if scope != "" {
			if _, err := c.store.DeletePrefix(ctx, scopePrefix(scope)); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		// Unscoped keys share no common prefix beyond their family.
		for name := range c.families {
			if _, err := c.store.DeletePrefix(ctx, familyPrefix("", name)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	clear(c.scopes)
	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("cache purge failed", "error", err)
	}
	return err
}
