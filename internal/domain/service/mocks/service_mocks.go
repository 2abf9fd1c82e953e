package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/apikeyd/internal/domain/models"
)

// MockRateLimitService is a mock implementation of RateLimitService
type MockRateLimitService struct {
	mock.Mock
}

func (m *MockRateLimitService) MultiLimit(ctx context.Context, requests []models.RatelimitRequest) (*models.MultiLimitResult, error) {
	args := m.Called(ctx, requests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MultiLimitResult), args.Error(1)
}

// MockUsageLimiter is a mock implementation of UsageLimiter
type MockUsageLimiter struct {
	mock.Mock
}

func (m *MockUsageLimiter) Deduct(ctx context.Context, keyID string, cost int64) (*models.UsageResult, error) {
	args := m.Called(ctx, keyID, cost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageResult), args.Error(1)
}

// MockAnalyticsSink is a mock implementation of AnalyticsSink
type MockAnalyticsSink struct {
	mock.Mock
}

func (m *MockAnalyticsSink) LogEvent(ctx context.Context, event *models.VerificationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
