// Package ratelimit provides multi-limit fixed window rate limiting backed by Redis or process memory.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/pkg/constants"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// RedisRateLimiter implements service.RateLimitService on a shared Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	logger logger.Logger
	config *RateLimiterConfig
}

var _ service.RateLimitService = (*RedisRateLimiter)(nil)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	// KeyPrefix is the Redis key prefix
	KeyPrefix string
	// Timeout bounds one MultiLimit call; zero means no extra bound
	Timeout time.Duration
	// Clock returns the current time; windows are aligned to it
	Clock func() time.Time
}

// DefaultRateLimiterConfig returns the configuration used when none is supplied.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		KeyPrefix: constants.RateLimitKeyPrefix,
		Timeout:   constants.DefaultRatelimitTimeout,
		Clock:     time.Now,
	}
}

// multiLimitLuaScript charges every window counter in one atomic step.
// ARGV holds (cost, limit, ttl_ms) for each key in KEYS order. A counter is
// only incremented when the cost fits, so a rejected limit is left as it was
// while the other limits are still charged.
const multiLimitLuaScript = `
local out = {}
for i, key in ipairs(KEYS) do
    local cost = tonumber(ARGV[i * 3 - 2])
    local limit = tonumber(ARGV[i * 3 - 1])
    local ttl = tonumber(ARGV[i * 3])

    local current = tonumber(redis.call('GET', key) or '0')
    local passed = 0
    if current + cost <= limit then
        current = redis.call('INCRBY', key, cost)
        passed = 1
    end
    if redis.call('PTTL', key) < 0 and current > 0 then
        redis.call('PEXPIRE', key, ttl)
    end

    local remaining = limit - current
    if remaining < 0 then
        remaining = 0
    end
    table.insert(out, passed)
    table.insert(out, remaining)
end
return out
`

var multiLimitScript = redis.NewScript(multiLimitLuaScript)

// NewRedisRateLimiter creates a new Redis-based rate limiter.
//
// Parameters:
//   - client: Redis client
//   - config: Rate limiter configuration, nil for defaults
//   - log: Logger instance
//
// Returns:
//   - *RedisRateLimiter: Initialized rate limiter
func NewRedisRateLimiter(client redis.UniversalClient, config *RateLimiterConfig, log logger.Logger) *RedisRateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = constants.RateLimitKeyPrefix
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &RedisRateLimiter{
		client: client,
		logger: log.WithComponent("RedisRateLimiter"),
		config: config,
	}
}

// MultiLimit charges every request against its current window and reports
// whether all of them passed.
//
// Parameters:
//   - ctx: Context for the Redis call
//   - requests: Limits to evaluate, in display order
//
// Returns:
//   - *models.MultiLimitResult: Per-limit status and the first failing name
//   - error: Validation or Redis error
func (rl *RedisRateLimiter) MultiLimit(ctx context.Context, requests []models.RatelimitRequest) (*models.MultiLimitResult, error) {
	if len(requests) == 0 {
		return &models.MultiLimitResult{Passed: true}, nil
	}
	if err := validateRequests(requests); err != nil {
		return nil, err
	}
	if rl.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.config.Timeout)
		defer cancel()
	}

	now := rl.config.Clock()
	keys := make([]string, len(requests))
	args := make([]interface{}, 0, len(requests)*3)
	windows := make([]window, len(requests))
	for i, req := range requests {
		w := windowAt(now, req.Duration)
		windows[i] = w
		keys[i] = rl.buildKey(req.Identifier, req.Name, req.Duration, w.index)
		ttl := w.end.Sub(now).Milliseconds()
		if ttl < 1 {
			ttl = 1
		}
		args = append(args, req.Cost, req.Limit, ttl)
	}

	raw, err := multiLimitScript.Run(ctx, rl.client, keys, args...).Int64Slice()
	if err != nil {
		rl.logger.Warn(ctx, "Rate limit script failed",
			logger.Int("limits", len(requests)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("evaluate rate limits: %w", err)
	}
	if len(raw) != len(requests)*2 {
		return nil, fmt.Errorf("evaluate rate limits: unexpected script result length %d", len(raw))
	}

	result := &models.MultiLimitResult{Passed: true, Limits: make([]models.RatelimitStatus, len(requests))}
	for i, req := range requests {
		status := models.RatelimitStatus{
			Name:      req.Name,
			Passed:    raw[i*2] == 1,
			Limit:     req.Limit,
			Remaining: raw[i*2+1],
			Reset:     windows[i].end.UnixMilli(),
		}
		result.Limits[i] = status
		if !status.Passed && result.Passed {
			result.Passed = false
			result.Triggered = req.Name
		}
	}

	if !result.Passed {
		rl.logger.Debug(ctx, "Rate limit exceeded",
			logger.String("identifier", requests[0].Identifier),
			logger.String("triggered", result.Triggered),
		)
	}
	return result, nil
}

// buildKey builds a Redis key for one window of one limit. The window size is
// part of the key since indexes of different sizes overlap. The identifier is
// wrapped in a hash tag so every limit of a caller lands in one cluster slot.
func (rl *RedisRateLimiter) buildKey(identifier, name string, d time.Duration, windowIndex int64) string {
	return fmt.Sprintf("%s:{%s}:%s:%d:%d", rl.config.KeyPrefix, identifier, name, d.Milliseconds(), windowIndex)
}

type window struct {
	index int64
	end   time.Time
}

// windowAt returns the fixed window of length d containing now.
func windowAt(now time.Time, d time.Duration) window {
	size := d.Milliseconds()
	index := now.UnixMilli() / size
	return window{index: index, end: time.UnixMilli((index + 1) * size)}
}

func validateRequests(requests []models.RatelimitRequest) error {
	for _, req := range requests {
		switch {
		case req.Name == "":
			return fmt.Errorf("%w: name is required", service.ErrInvalidRatelimitRequest)
		case req.Identifier == "":
			return fmt.Errorf("%w: %q: identifier is required", service.ErrInvalidRatelimitRequest, req.Name)
		case req.Limit <= 0:
			return fmt.Errorf("%w: %q: limit must be positive, got %d", service.ErrInvalidRatelimitRequest, req.Name, req.Limit)
		case req.Duration < time.Millisecond || req.Duration > models.MaxRatelimitDuration:
			return fmt.Errorf("%w: %q: duration must be between 1ms and %s, got %s",
				service.ErrInvalidRatelimitRequest, req.Name, models.MaxRatelimitDuration, req.Duration)
		case req.Cost < 0:
			return fmt.Errorf("%w: %q: cost must not be negative, got %d", service.ErrInvalidRatelimitRequest, req.Name, req.Cost)
		}
	}
	return nil
}
