// Package usagelimit deducts from a key's remaining credits in the system of record.
package usagelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// The WHERE clause is the whole concurrency story: the row is only touched when
// enough credits are left, so concurrent callers can never drive it negative and
// a rejected deduction writes nothing.
const deductQuery = `
UPDATE keys SET remaining = remaining - ?
WHERE id = ? AND deleted_at IS NULL AND remaining IS NOT NULL AND remaining >= ?
RETURNING remaining`

// GormUsageLimiter implements service.UsageLimiter with a conditional UPDATE.
type GormUsageLimiter struct {
	db      *gorm.DB
	timeout time.Duration
	logger  logger.Logger
}

var _ service.UsageLimiter = (*GormUsageLimiter)(nil)

// NewGormUsageLimiter creates a usage limiter. Every deduction is bounded by timeout.
func NewGormUsageLimiter(db *gorm.DB, timeout time.Duration, log logger.Logger) *GormUsageLimiter {
	return &GormUsageLimiter{
		db:      db,
		timeout: timeout,
		logger:  log.WithComponent("UsageLimiter"),
	}
}

// Deduct subtracts cost from the key's remaining credits. When fewer than cost
// credits are left the deduction is rejected and the counter is unchanged.
func (l *GormUsageLimiter) Deduct(ctx context.Context, keyID string, cost int64) (*models.UsageResult, error) {
	if cost < 0 {
		return nil, fmt.Errorf("usage cost must not be negative, got %d", cost)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var remaining int64
	err := l.db.WithContext(ctx).Raw(deductQuery, cost, keyID, cost).Row().Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		l.logger.Debug(ctx, "Usage deduction rejected",
			logger.String("key_id", keyID),
			logger.Int64("cost", cost),
		)
		return &models.UsageResult{Valid: false, Remaining: 0}, nil
	}
	if err != nil {
		l.logger.Error(ctx, "Usage deduction failed", err, logger.String("key_id", keyID))
		return nil, fmt.Errorf("deduct usage for key %s: %w", keyID, err)
	}

	return &models.UsageResult{Valid: true, Remaining: remaining}, nil
}
