// Package crypto derives lookup digests from raw API key secrets.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/turtacn/apikeyd/internal/domain/service"
)

// Hasher computes SHA-256 digests and memoizes them in a bounded, expiring LRU.
// One Hasher is built per process and shared by every request; the memo is a
// pure optimisation and may drop entries at any time.
type Hasher struct {
	memo *expirable.LRU[string, string]
}

var _ service.Hasher = (*Hasher)(nil)

// NewHasher creates a Hasher remembering at most maxEntries digests for ttl.
// A maxEntries of zero disables memoization.
func NewHasher(maxEntries int, ttl time.Duration) *Hasher {
	h := &Hasher{}
	if maxEntries > 0 {
		h.memo = expirable.NewLRU[string, string](maxEntries, nil, ttl)
	}
	return h
}

// Hash returns the lowercase hex SHA-256 of secret.
func (h *Hasher) Hash(secret string) string {
	if h.memo != nil {
		if digest, ok := h.memo.Get(secret); ok {
			return digest
		}
	}
	sum := sha256.Sum256([]byte(secret))
	digest := hex.EncodeToString(sum[:])
	if h.memo != nil {
		h.memo.Add(secret, digest)
	}
	return digest
}

// Len returns the number of memoized digests.
func (h *Hasher) Len() int {
	if h.memo == nil {
		return 0
	}
	return h.memo.Len()
}
