package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeValue(t *testing.T) {
	t.Run("masks long secrets", func(t *testing.T) {
		assert.Equal(t, "sk_l***6789", SanitizeValue("raw_key", "sk_live_123456789"))
	})

	t.Run("masks short secrets completely", func(t *testing.T) {
		assert.Equal(t, "***", SanitizeValue("Authorization", "Bearer x"))
	})

	t.Run("redacts non-string secrets", func(t *testing.T) {
		assert.Equal(t, "***REDACTED***", SanitizeValue("client_secret", 42))
	})

	t.Run("keeps the key hash", func(t *testing.T) {
		assert.Equal(t, "abc123", SanitizeValue("key_hash", "abc123"))
	})
}

func TestErrorField(t *testing.T) {
	assert.Nil(t, Error(nil).Value)
	assert.Equal(t, "boom", Error(errors.New("boom")).Value)
}
