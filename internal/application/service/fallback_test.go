package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service/mocks"
	"github.com/turtacn/apikeyd/pkg/errors"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// brokenCache always fails and records evictions.
type brokenCache struct {
	removed []string
}

func (c *brokenCache) SWR(context.Context, string, func(context.Context) (*models.VerificationRecord, error)) (*models.VerificationRecord, error) {
	return nil, stderrors.New("cache unavailable")
}

func (c *brokenCache) Set(string, *models.VerificationRecord) {}

func (c *brokenCache) Remove(hash string) { c.removed = append(c.removed, hash) }

func TestFallbackPolicy(t *testing.T) {
	t.Run("reads the store directly after evicting", func(t *testing.T) {
		c := &brokenCache{}
		keys := new(mocks.MockKeyRepository)
		keys.On("FindVerificationRecord", mock.Anything, "h1").Return(baseRecord(), nil)

		p := NewFallbackPolicy(c, keys, 3, logger.NewNoopLogger())
		record, err := p.Fetch(context.Background(), "h1")
		require.NoError(t, err)
		assert.Equal(t, "key_1", record.Key.ID)
		assert.Equal(t, []string{"h1"}, c.removed)
		keys.AssertNumberOfCalls(t, "FindVerificationRecord", 1)
	})

	t.Run("bounded attempts", func(t *testing.T) {
		keys := new(mocks.MockKeyRepository)
		keys.On("FindVerificationRecord", mock.Anything, "h1").Return(nil, stderrors.New("down"))

		p := NewFallbackPolicy(&brokenCache{}, keys, 2, logger.NewNoopLogger())
		_, err := p.Fetch(context.Background(), "h1")
		require.Error(t, err)
		assert.True(t, errors.IsServerError(err))
		keys.AssertNumberOfCalls(t, "FindVerificationRecord", 2)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		keys := new(mocks.MockKeyRepository)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewFallbackPolicy(&brokenCache{}, keys, 3, logger.NewNoopLogger())
		_, err := p.Fetch(ctx, "h1")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, context.Canceled))
		keys.AssertNotCalled(t, "FindVerificationRecord", mock.Anything, mock.Anything)
	})

	t.Run("a cached not found is not an error", func(t *testing.T) {
		keys := new(mocks.MockKeyRepository)
		keys.On("FindVerificationRecord", mock.Anything, "h1").Return(nil, nil)
		h := newHarness(t)

		p := NewFallbackPolicy(h.cache, keys, 3, logger.NewNoopLogger())
		record, err := p.Fetch(context.Background(), "h1")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}
