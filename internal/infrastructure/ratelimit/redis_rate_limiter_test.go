package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/internal/infrastructure/ratelimit"
	"github.com/turtacn/apikeyd/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	// aligned to a second so 1000ms windows start exactly here
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

type backend struct {
	name string
	new  func(t *testing.T, clock *fakeClock) service.RateLimitService
}

func backends() []backend {
	return []backend{
		{
			name: "redis",
			new: func(t *testing.T, clock *fakeClock) service.RateLimitService {
				s := miniredis.RunT(t)
				client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				return ratelimit.NewRedisRateLimiter(client, &ratelimit.RateLimiterConfig{
					Timeout: time.Second,
					Clock:   clock.Now,
				}, logger.NewNoopLogger())
			},
		},
		{
			name: "memory",
			new: func(t *testing.T, clock *fakeClock) service.RateLimitService {
				return ratelimit.NewMemoryRateLimiter(clock.Now)
			},
		},
	}
}

func req(name string, limit int64, d time.Duration) models.RatelimitRequest {
	return models.RatelimitRequest{Name: name, Identifier: "id_1", Cost: 1, Limit: limit, Duration: d}
}

func TestMultiLimit(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Run("fourth call in the window is rejected", func(t *testing.T) {
				clock := newClock()
				rl := b.new(t, clock)

				for i := 0; i < 3; i++ {
					res, err := rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 3, time.Second)})
					require.NoError(t, err)
					assert.True(t, res.Passed, "call %d", i+1)
					assert.Equal(t, int64(2-i), res.Limits[0].Remaining)
				}

				res, err := rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 3, time.Second)})
				require.NoError(t, err)
				assert.False(t, res.Passed)
				assert.Equal(t, "requests", res.Triggered)
				assert.Equal(t, int64(0), res.Limits[0].Remaining)
				assert.Equal(t, int64(3), res.Limits[0].Limit)
				assert.Equal(t, clock.Now().Add(time.Second).UnixMilli(), res.Limits[0].Reset)
			})

			t.Run("a new window starts fresh", func(t *testing.T) {
				clock := newClock()
				rl := b.new(t, clock)

				for i := 0; i < 2; i++ {
					_, err := rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 2, time.Second)})
					require.NoError(t, err)
				}
				res, err := rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 2, time.Second)})
				require.NoError(t, err)
				assert.False(t, res.Passed)

				clock.Advance(time.Second)
				res, err = rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 2, time.Second)})
				require.NoError(t, err)
				assert.True(t, res.Passed)
				assert.Equal(t, int64(1), res.Limits[0].Remaining)
			})

			t.Run("every limit is charged even when one fails", func(t *testing.T) {
				clock := newClock()
				rl := b.new(t, clock)

				both := []models.RatelimitRequest{req("tight", 1, time.Minute), req("loose", 10, time.Minute)}
				res, err := rl.MultiLimit(ctx, both)
				require.NoError(t, err)
				assert.True(t, res.Passed)

				res, err = rl.MultiLimit(ctx, both)
				require.NoError(t, err)
				assert.False(t, res.Passed)
				assert.Equal(t, "tight", res.Triggered)
				require.Len(t, res.Limits, 2)
				assert.False(t, res.Limits[0].Passed)
				assert.True(t, res.Limits[1].Passed)
				assert.Equal(t, int64(8), res.Limits[1].Remaining)
			})

			t.Run("cost is charged in one step", func(t *testing.T) {
				clock := newClock()
				rl := b.new(t, clock)

				r := req("tokens", 10, time.Minute)
				r.Cost = 7
				res, err := rl.MultiLimit(ctx, []models.RatelimitRequest{r})
				require.NoError(t, err)
				assert.True(t, res.Passed)
				assert.Equal(t, int64(3), res.Limits[0].Remaining)

				res, err = rl.MultiLimit(ctx, []models.RatelimitRequest{r})
				require.NoError(t, err)
				assert.False(t, res.Passed)
				assert.Equal(t, int64(3), res.Limits[0].Remaining, "a rejected charge leaves the counter alone")
			})

			t.Run("identifiers are isolated", func(t *testing.T) {
				clock := newClock()
				rl := b.new(t, clock)

				a := req("requests", 1, time.Minute)
				other := a
				other.Identifier = "id_2"

				res, err := rl.MultiLimit(ctx, []models.RatelimitRequest{a})
				require.NoError(t, err)
				assert.True(t, res.Passed)
				res, err = rl.MultiLimit(ctx, []models.RatelimitRequest{other})
				require.NoError(t, err)
				assert.True(t, res.Passed)
			})

			t.Run("empty request passes", func(t *testing.T) {
				rl := b.new(t, newClock())
				res, err := rl.MultiLimit(ctx, nil)
				require.NoError(t, err)
				assert.True(t, res.Passed)
				assert.Empty(t, res.Limits)
			})

			t.Run("invalid requests are rejected", func(t *testing.T) {
				rl := b.new(t, newClock())
				bad := req("requests", 0, time.Second)
				_, err := rl.MultiLimit(ctx, []models.RatelimitRequest{bad})
				assert.Error(t, err)

				bad = req("requests", 1, 0)
				_, err = rl.MultiLimit(ctx, []models.RatelimitRequest{bad})
				assert.ErrorIs(t, err, service.ErrInvalidRatelimitRequest)

				bad = req("requests", 1, models.MaxRatelimitDuration+time.Millisecond)
				_, err = rl.MultiLimit(ctx, []models.RatelimitRequest{bad})
				assert.ErrorIs(t, err, service.ErrInvalidRatelimitRequest)
			})

			t.Run("window sizes do not share counters", func(t *testing.T) {
				clock := newClock()
				rl := b.new(t, clock)

				res, err := rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 1, time.Second)})
				require.NoError(t, err)
				assert.True(t, res.Passed)

				// Twice the elapsed time with twice the window lands on the same window index.
				clock.Advance(time.Duration(clock.Now().UnixMilli()) * time.Millisecond)
				res, err = rl.MultiLimit(ctx, []models.RatelimitRequest{req("requests", 1, 2*time.Second)})
				require.NoError(t, err)
				assert.True(t, res.Passed)
				assert.Equal(t, int64(0), res.Limits[0].Remaining)
			})
		})
	}
}

func TestRedisRateLimiter_KeysExpireWithWindow(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	defer client.Close()

	clock := newClock()
	clock.Advance(250 * time.Millisecond)
	rl := ratelimit.NewRedisRateLimiter(client, &ratelimit.RateLimiterConfig{Clock: clock.Now}, logger.NewNoopLogger())

	_, err := rl.MultiLimit(context.Background(), []models.RatelimitRequest{req("requests", 5, time.Second)})
	require.NoError(t, err)

	keys := s.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "ratelimit:{id_1}:requests:1000:1700000000", keys[0])
	assert.Equal(t, 750*time.Millisecond, s.TTL(keys[0]))
}

func TestRedisRateLimiter_Unavailable(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	rl := ratelimit.NewRedisRateLimiter(client, nil, logger.NewNoopLogger())
	_, err := rl.MultiLimit(context.Background(), []models.RatelimitRequest{req("requests", 5, time.Second)})
	assert.Error(t, err)
}

func TestMemoryRateLimiter_Cleanup(t *testing.T) {
	clock := newClock()
	rl := ratelimit.NewMemoryRateLimiter(clock.Now)

	_, err := rl.MultiLimit(context.Background(), []models.RatelimitRequest{req("a", 5, time.Second), req("b", 5, time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 2, rl.Size())

	assert.Equal(t, 0, rl.Cleanup(time.Minute))
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, rl.Cleanup(time.Minute))
	assert.Equal(t, 0, rl.Size())
}

func TestMemoryRateLimiter_Concurrent(t *testing.T) {
	rl := ratelimit.NewMemoryRateLimiter(newClock().Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := rl.MultiLimit(context.Background(), []models.RatelimitRequest{req("requests", 20, time.Minute)})
			if err == nil && res.Passed {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, passed)
}
