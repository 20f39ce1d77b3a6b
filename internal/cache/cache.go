// Package cache keeps built rack layouts and bin contents close to the
// service: a bounded in-process LRU in front of an optional shared store.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/cellar-rack/internal/core/observability"
)

// Remote is the shared tier, satisfied by *redisstore.Client.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Interface is what the inventory service needs from a cache.
//
// A fill reads Generation before going upstream and writes with Fill; a Del
// that lands in between bumps the generation and the stale fill is dropped.
type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Generation(key string) uint64
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Fill(ctx context.Context, key string, val []byte, ttl time.Duration, gen uint64) bool
	Del(ctx context.Context, keys ...string) error
}

type entry struct {
	val     []byte
	expires time.Time
}

type Cache struct {
	log       *slog.Logger
	local     *lru.Cache[string, entry]
	remote    Remote
	opTimeout time.Duration
	now       func() time.Time

	mu    sync.Mutex
	clock uint64
	gens  map[string]uint64 // last Del per key, bounded by the key space
}

var _ Interface = (*Cache)(nil)

// New builds a cache. remote may be nil for a local-only cache.
func New(log *slog.Logger, remote Remote, localSize int, opTimeout time.Duration) (*Cache, error) {
	if localSize <= 0 {
		localSize = 256
	}
	l, err := lru.New[string, entry](localSize)
	if err != nil {
		return nil, fmt.Errorf("local lru: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		log:       log,
		local:     l,
		remote:    remote,
		opTimeout: opTimeout,
		now:       time.Now,
		gens:      make(map[string]uint64),
	}, nil
}

// Get never fails: shared-tier errors are logged and count as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := c.local.Get(key); ok {
		if c.now().Before(e.expires) {
			observability.IncCacheHit("local")
			return e.val, true
		}
		c.local.Remove(key)
	}
	observability.IncCacheMiss("local")

	if c.remote == nil {
		return nil, false
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	val, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		c.log.WarnContext(ctx, "cache get failed", "key", key, "err", err)
		observability.IncCacheMiss("remote")
		return nil, false
	}
	if !ok {
		observability.IncCacheMiss("remote")
		return nil, false
	}
	observability.IncCacheHit("remote")
	return val, true
}

// Generation returns an opaque token for Fill that changes whenever key is
// deleted.
func (c *Cache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// Set stores val unconditionally.
func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(ctx, key, val, ttl)
}

// Fill stores val only if key was not deleted since Generation returned gen.
// It reports whether the value was stored.
func (c *Cache) Fill(ctx context.Context, key string, val []byte, ttl time.Duration, gen uint64) bool {
	if ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		c.log.DebugContext(ctx, "dropping stale fill", "key", key)
		return false
	}
	c.store(ctx, key, val, ttl)
	return true
}

// store writes both tiers; c.mu must be held.
func (c *Cache) store(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.local.Add(key, entry{val: val, expires: c.now().Add(ttl)})
	if c.remote == nil {
		return
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.remote.Set(ctx, key, val, ttl); err != nil {
		c.log.WarnContext(ctx, "cache set failed", "key", key, "err", err)
	}
}

// Del drops keys from both tiers. The local tier is always cleared; the
// error reports a shared-tier failure.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	for _, k := range keys {
		c.gens[k] = c.clock
		c.local.Remove(k)
	}
	if c.remote == nil || len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.remote.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// Noop is used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool)                       { return nil, false }
func (Noop) Generation(string) uint64                                         { return 0 }
func (Noop) Set(context.Context, string, []byte, time.Duration)               {}
func (Noop) Fill(context.Context, string, []byte, time.Duration, uint64) bool { return false }
func (Noop) Del(context.Context, ...string) error                             { return nil }
