package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/apikeyd/pkg/constants"
)

func TestVerificationErrors(t *testing.T) {
	t.Run("disabled workspace is a 403", func(t *testing.T) {
		err := ErrDisabledWorkspace("ws_1")
		assert.Equal(t, http.StatusForbidden, err.HTTPStatus())
		assert.True(t, IsDisabledWorkspace(err))
		assert.False(t, IsServerError(err))
		assert.Equal(t, "ws_1", err.Metadata()["workspace_id"])
	})

	t.Run("predicates see through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("verify: %w", ErrMissingRatelimit("tokens"))
		assert.True(t, IsMissingRatelimit(wrapped))
		assert.False(t, IsInvalidPermissionQuery(wrapped))
	})

	t.Run("fetch failure keeps its cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := ErrFetchFailed(cause)
		assert.True(t, stderrors.Is(err, cause))
		assert.True(t, IsServerError(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("unknown errors are server errors", func(t *testing.T) {
		assert.True(t, IsServerError(stderrors.New("boom")))
		assert.False(t, IsServerError(nil))
	})
}

func TestWrapError(t *testing.T) {
	err := WrapError(stderrors.New("x"), constants.ErrCodeInvalidPermissionQuery, "bad query")
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())

	err = WrapError(stderrors.New("x"), constants.ErrCodeFetchFailed, "db down")
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestToGenericErrorResponse(t *testing.T) {
	t.Run("server errors never leak cause or metadata", func(t *testing.T) {
		err := ErrFetchFailed(stderrors.New("pq: password authentication failed"))
		err.WithMetadata("key_hash", "abc")
		resp := ToGenericErrorResponse(err)
		require.NotNil(t, resp)
		assert.Equal(t, string(constants.ErrCodeFetchFailed), resp.Error)
		assert.NotContains(t, resp.ErrorDescription, "password")
		assert.Nil(t, resp.Metadata)
	})

	t.Run("plain errors become a generic 500 body", func(t *testing.T) {
		resp := ToGenericErrorResponse(stderrors.New("secret internals"))
		assert.Equal(t, string(constants.ErrCodeServerError), resp.Error)
		assert.Equal(t, "An unexpected error occurred", resp.ErrorDescription)
	})

	t.Run("client errors expose metadata", func(t *testing.T) {
		resp := ToGenericErrorResponse(ErrMissingRatelimit("tokens"))
		assert.Equal(t, "tokens", resp.Metadata["ratelimit"])
	})
}
