// Package service defines the interfaces for domain services.
package service

import (
	"context"
	"errors"

	"github.com/turtacn/apikeyd/internal/domain/models"
)

// Hasher maps a raw secret to its lookup digest.
// Hasher 将原始密钥映射为查找摘要。
type Hasher interface {
	// Hash returns the lowercase hex SHA-256 of secret.
	Hash(secret string) string
}

// ErrInvalidRatelimitRequest is wrapped by RateLimitService implementations
// when a request is rejected before any counter is touched.
// ErrInvalidRatelimitRequest 表示限流请求在访问计数器前即被拒绝。
var ErrInvalidRatelimitRequest = errors.New("invalid rate limit request")

// RateLimitService evaluates several named limits in one round trip.
// RateLimitService 在一次往返中评估多个命名限制。
type RateLimitService interface {
	// MultiLimit charges every request, even after one fails, and reports the AND of all results.
	// MultiLimit 扣减每个请求（即使某个已失败），并报告所有结果的逻辑与。
	MultiLimit(ctx context.Context, requests []models.RatelimitRequest) (*models.MultiLimitResult, error)
}

// UsageLimiter atomically deducts from a key's remaining credits.
// UsageLimiter 原子地扣减密钥的剩余额度。
type UsageLimiter interface {
	// Deduct rejects a deduction that would make remaining negative and leaves the counter unchanged.
	// Deduct 拒绝会使剩余额度为负的扣减，并保持计数器不变。
	Deduct(ctx context.Context, keyID string, cost int64) (*models.UsageResult, error)
}

// AnalyticsSink receives one event per verification.
// AnalyticsSink 接收每次验证的事件。
type AnalyticsSink interface {
	LogEvent(ctx context.Context, event *models.VerificationEvent) error
}

// RecordCache is the stale-while-revalidate cache of verification records keyed by digest.
// A nil record is a cached "not found".
// RecordCache 是按摘要索引的验证记录缓存；nil 记录表示缓存的“未找到”。
type RecordCache interface {
	SWR(ctx context.Context, hash string, load func(context.Context) (*models.VerificationRecord, error)) (*models.VerificationRecord, error)
	Set(hash string, record *models.VerificationRecord)
	Remove(hash string)
}
