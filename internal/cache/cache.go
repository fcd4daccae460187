// Package cache attaches an explicit freshness policy to each data fetch.
//
// Callers pick a Policy at the call site:
//
//   - AlwaysRevalidate: every call hits the backend; the result is stored
//     for readers using other policies.
//   - StaticUntilInvalidated: the stored value is served until Invalidate or
//     TTL expiry.
//   - StaleWhileRevalidate: a stored value is served immediately; once older
//     than the freshness window it is refreshed in the background.
//
// Concurrent fetches of the same key are coalesced.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront-gateway/internal/metrics"
)

// Policy selects how a fetch uses stored values.
type Policy int

const (
	AlwaysRevalidate Policy = iota
	StaticUntilInvalidated
	StaleWhileRevalidate
)

func (p Policy) String() string {
	switch p {
	case AlwaysRevalidate:
		return "always-revalidate"
	case StaticUntilInvalidated:
		return "static-until-invalidated"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

const (
	// DefaultTTL bounds how long any stored value lives.
	DefaultTTL = time.Hour

	// DefaultFreshness is the stale-while-revalidate window.
	DefaultFreshness = time.Minute

	// refreshTimeout bounds background refreshes.
	refreshTimeout = 30 * time.Second
)

// Options configures a Cache.
type Options struct {
	TTL       time.Duration
	Freshness time.Duration
	Logger    *slog.Logger
}

// Cache applies policies over a Store. Safe for concurrent use.
type Cache struct {
	store     Store
	group     singleflight.Group
	ttl       time.Duration
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// stripes order writes against invalidations. Keys share stripes; a
	// collision only skips a cache write.
	stripes [64]stripe
}

type stripe struct {
	mu  sync.Mutex
	gen uint64
}

func (c *Cache) stripe(key string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.stripes[h.Sum32()%uint32(len(c.stripes))]
}

// generation reports the invalidation count seen by key's stripe.
func (c *Cache) generation(key string) uint64 {
	s := c.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// New creates a Cache over store.
func New(store Store, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		store:     store,
		ttl:       opts.TTL,
		freshness: opts.Freshness,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Invalidate drops the stored value for key. The next read refetches, and
// fetches already in flight for key do not store their results.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	s := c.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	c.group.Forget(key)
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

// Fetch returns the value for key under policy, calling fetch when the
// policy requires it. Store failures degrade to a direct fetch.
func Fetch[T any](ctx context.Context, c *Cache, key string, policy Policy, fetch func(context.Context) (T, error)) (T, error) {
	if policy == AlwaysRevalidate {
		metrics.RecordCacheLookup(policy.String(), "bypass")
		return load(ctx, c, key, fetch)
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if ok {
		var v T
		if err := json.Unmarshal(entry.Value, &v); err != nil {
			c.logger.Warn("cache entry undecodable", slog.String("key", key), slog.Any("error", err))
		} else {
			if policy == StaleWhileRevalidate && c.now().Sub(entry.StoredAt) > c.freshness {
				metrics.RecordCacheLookup(policy.String(), "stale")
				refresh(ctx, c, key, fetch)
				return v, nil
			}
			metrics.RecordCacheLookup(policy.String(), "hit")
			return v, nil
		}
	}

	metrics.RecordCacheLookup(policy.String(), "miss")
	return load(ctx, c, key, fetch)
}

// load fetches through the singleflight group and stores the result.
func load[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	ch := c.group.DoChan(key, func() (interface{}, error) {
		gen := c.generation(key)
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, gen, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// The shared call ran under another caller's context. If that one
			// was cancelled but we were not, fetch on our own.
			if res.Shared && errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
				gen := c.generation(key)
				v, err := fetch(ctx)
				if err != nil {
					return zero, err
				}
				c.put(ctx, key, gen, v)
				return v, nil
			}
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache key %s holds %T", key, res.Val)
		}
		return v, nil
	}
}

// refresh reloads key in the background, detached from the caller.
func refresh[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) {
	bg := context.WithoutCancel(ctx)
	go func() {
		bg, cancel := context.WithTimeout(bg, refreshTimeout)
		defer cancel()
		if _, err := load(bg, c, key, fetch); err != nil {
			c.logger.Warn("background refresh failed", slog.String("key", key), slog.Any("error", err))
		}
	}()
}

// put stores v unless key was invalidated after gen was read.
func (c *Cache) put(ctx context.Context, key string, gen uint64, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	s := c.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		c.logger.Debug("cache write skipped after invalidation", slog.String("key", key))
		return
	}
	if err := c.store.Set(ctx, key, Entry{Value: raw, StoredAt: c.now()}, c.ttl); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}
