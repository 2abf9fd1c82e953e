package service

import (
	"context"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/repository"
	domainService "github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/pkg/errors"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// FallbackPolicy loads a verification record through the cache. When the
// cached path fails it evicts the entry and reads the store directly, up to
// a fixed number of attempts, without writing the result back.
type FallbackPolicy struct {
	cache    domainService.RecordCache
	keys     repository.KeyRepository
	attempts int
	logger   logger.Logger
}

// NewFallbackPolicy creates a FallbackPolicy. attempts below 1 is treated as 1.
func NewFallbackPolicy(cache domainService.RecordCache, keys repository.KeyRepository, attempts int, log logger.Logger) *FallbackPolicy {
	if attempts < 1 {
		attempts = 1
	}
	return &FallbackPolicy{
		cache:    cache,
		keys:     keys,
		attempts: attempts,
		logger:   log.WithComponent("FallbackPolicy"),
	}
}

// Fetch returns the record for hash, nil when no live key matches.
func (p *FallbackPolicy) Fetch(ctx context.Context, hash string) (*models.VerificationRecord, error) {
	record, err := p.cache.SWR(ctx, hash, func(ctx context.Context) (*models.VerificationRecord, error) {
		return p.keys.FindVerificationRecord(ctx, hash)
	})
	if err == nil {
		return record, nil
	}

	p.logger.Warn(ctx, "Cached lookup failed, reading the store directly",
		logger.String("key_hash", hash),
		logger.Error(err),
	)
	p.cache.Remove(hash)

	lastErr := err
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
			break
		}
		record, err = p.keys.FindVerificationRecord(ctx, hash)
		if err == nil {
			return record, nil
		}
		lastErr = err
		p.logger.Warn(ctx, "Direct lookup failed",
			logger.String("key_hash", hash),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
	}
	return nil, errors.ErrFetchFailed(lastErr)
}
