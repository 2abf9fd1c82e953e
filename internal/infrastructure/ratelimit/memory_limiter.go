package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service"
)

// MemoryRateLimiter implements service.RateLimitService inside one process.
// Counters are not shared between replicas.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
	clock   func() time.Time
}

var _ service.RateLimitService = (*MemoryRateLimiter)(nil)

// windowEntry is the counter of one limit in its current window.
type windowEntry struct {
	index    int64
	count    int64
	lastUsed time.Time
}

// NewMemoryRateLimiter creates an in-process rate limiter.
//
// Parameters:
//   - clock: Time source, nil for time.Now
//
// Returns:
//   - *MemoryRateLimiter: Initialized limiter
func NewMemoryRateLimiter(clock func() time.Time) *MemoryRateLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRateLimiter{
		windows: make(map[string]*windowEntry),
		clock:   clock,
	}
}

// MultiLimit charges every request under a single lock so that concurrent
// callers see the limits change together.
func (m *MemoryRateLimiter) MultiLimit(ctx context.Context, requests []models.RatelimitRequest) (*models.MultiLimitResult, error) {
	if len(requests) == 0 {
		return &models.MultiLimitResult{Passed: true}, nil
	}
	if err := validateRequests(requests); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	result := &models.MultiLimitResult{Passed: true, Limits: make([]models.RatelimitStatus, len(requests))}
	for i, req := range requests {
		w := windowAt(now, req.Duration)
		key := req.Identifier + "\x00" + req.Name + "\x00" + strconv.FormatInt(req.Duration.Milliseconds(), 10)
		entry := m.getOrCreate(key, w.index, now)

		passed := entry.count+req.Cost <= req.Limit
		if passed {
			entry.count += req.Cost
		}
		remaining := req.Limit - entry.count
		if remaining < 0 {
			remaining = 0
		}

		result.Limits[i] = models.RatelimitStatus{
			Name:      req.Name,
			Passed:    passed,
			Limit:     req.Limit,
			Remaining: remaining,
			Reset:     w.end.UnixMilli(),
		}
		if !passed && result.Passed {
			result.Passed = false
			result.Triggered = req.Name
		}
	}
	return result, nil
}

// getOrCreate returns the counter for key, resetting it when its window has moved on.
// Must be called with lock held.
func (m *MemoryRateLimiter) getOrCreate(key string, index int64, now time.Time) *windowEntry {
	entry, ok := m.windows[key]
	if !ok {
		entry = &windowEntry{index: index}
		m.windows[key] = entry
	}
	if entry.index != index {
		entry.index = index
		entry.count = 0
	}
	entry.lastUsed = now
	return entry
}

// Cleanup removes counters that haven't been used for the specified duration.
//
// Parameters:
//   - maxIdle: Maximum idle duration
//
// Returns:
//   - int: Number of counters removed
func (m *MemoryRateLimiter) Cleanup(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	removed := 0
	for key, entry := range m.windows {
		if now.Sub(entry.lastUsed) > maxIdle {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of live counters.
func (m *MemoryRateLimiter) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (m *MemoryRateLimiter) RunCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(maxIdle)
		}
	}
}
