// Package cache provides a stale-while-revalidate cache with single-flight loading.
package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/apikeyd/pkg/logger"
)

// Lookup states reported to the Recorder.
const (
	StateFresh = "fresh"
	StateStale = "stale"
	StateMiss  = "miss"
)

// Recorder receives one call per lookup.
type Recorder interface {
	RecordCacheLookup(namespace, state string)
}

// Config configures an SWRCache.
type Config struct {
	// Namespace labels metrics and logs.
	Namespace string
	// FreshTTL is how long a value is served without refresh.
	FreshTTL time.Duration
	// StaleTTL is how long after being written a value may still be served while refreshing.
	StaleTTL time.Duration
	// RefreshTimeout bounds one background refresh.
	RefreshTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Recorder is optional.
	Recorder Recorder
}

type entry[V any] struct {
	value      V
	freshUntil time.Time
	staleUntil time.Time
}

// flight tracks one running load. removed is set by Remove so the loaded
// value, read before the removal, is not stored.
type flight struct {
	removed bool
}

// SWRCache serves fresh values directly, serves stale values while exactly one
// background refresh per key runs, and coalesces concurrent loads on a miss.
// Zero values (for pointer types, nil) are cached like any other value.
type SWRCache[V any] struct {
	cfg        Config
	store      *gocache.Cache
	group      singleflight.Group
	refreshing sync.Map
	logger     logger.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// NewSWRCache creates an SWRCache.
func NewSWRCache[V any](cfg Config, log logger.Logger) *SWRCache[V] {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StaleTTL < cfg.FreshTTL {
		cfg.StaleTTL = cfg.FreshTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	return &SWRCache[V]{
		cfg:    cfg,
		store:   gocache.New(cfg.StaleTTL, 10*time.Minute),
		logger:  log.WithComponent("SWRCache").WithFields(logger.String("namespace", cfg.Namespace)),
		flights: make(map[string]*flight),
	}
}

// SWR returns the cached value for key, loading it with load on a miss.
func (c *SWRCache[V]) SWR(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	now := c.cfg.Clock()
	if e, ok := c.get(key); ok {
		if now.Before(e.freshUntil) {
			c.record(StateFresh)
			return e.value, nil
		}
		if now.Before(e.staleUntil) {
			c.record(StateStale)
			c.revalidate(ctx, key, load)
			return e.value, nil
		}
		c.store.Delete(key)
	}

	c.record(StateMiss)
	return c.load(ctx, key, load)
}

// Set stores value as fresh.
func (c *SWRCache[V]) Set(key string, value V) {
	now := c.cfg.Clock()
	c.store.Set(key, &entry[V]{
		value:      value,
		freshUntil: now.Add(c.cfg.FreshTTL),
		staleUntil: now.Add(c.cfg.StaleTTL),
	}, c.cfg.StaleTTL)
}

// Remove evicts key. A load of key already in flight still answers its
// callers but does not write its result back.
func (c *SWRCache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(key)
	if f, ok := c.flights[key]; ok {
		f.removed = true
	}
}

// Len returns the number of stored entries, including stale ones.
func (c *SWRCache[V]) Len() int {
	return c.store.ItemCount()
}

func (c *SWRCache[V]) get(key string) (*entry[V], bool) {
	raw, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := raw.(*entry[V])
	return e, ok
}

func (c *SWRCache[V]) load(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		f := &flight{}
		c.mu.Lock()
		c.flights[key] = f
		c.mu.Unlock()

		value, err := load(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.flights, key)
		if err != nil {
			return nil, err
		}
		if !f.removed {
			c.Set(key, value)
		}
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	value, _ := v.(V)
	return value, nil
}

// revalidate starts a refresh for key unless one is already running.
// The refresh outlives the caller's request.
func (c *SWRCache[V]) revalidate(ctx context.Context, key string, load func(context.Context) (V, error)) {
	if _, running := c.refreshing.LoadOrStore(key, struct{}{}); running {
		return
	}
	go func() {
		defer c.refreshing.Delete(key)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
		defer cancel()
		if _, err := c.load(rctx, key, load); err != nil {
			c.logger.Warn(rctx, "Background refresh failed, keeping stale value",
				logger.String("cache_key", key), logger.Error(err))
		}
	}()
}

func (c *SWRCache[V]) record(state string) {
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RecordCacheLookup(c.cfg.Namespace, state)
	}
}
