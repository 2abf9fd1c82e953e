package crypto

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasher_Hash(t *testing.T) {
	h := NewHasher(10, time.Minute)

	t.Run("matches the SHA-256 test vector", func(t *testing.T) {
		assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h.Hash("abc"))
	})

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, h.Hash("sk_live_123"), h.Hash("sk_live_123"))
		assert.NotEqual(t, h.Hash("sk_live_123"), h.Hash("sk_live_124"))
	})

	t.Run("memo is bounded", func(t *testing.T) {
		small := NewHasher(3, time.Minute)
		for i := 0; i < 10; i++ {
			small.Hash(fmt.Sprintf("secret_%d", i))
		}
		assert.Equal(t, 3, small.Len())
	})

	t.Run("memo can be disabled", func(t *testing.T) {
		off := NewHasher(0, time.Minute)
		assert.Equal(t, h.Hash("abc"), off.Hash("abc"))
		assert.Zero(t, off.Len())
	})
}

func TestHasher_Concurrent(t *testing.T) {
	h := NewHasher(100, time.Minute)
	want := NewHasher(0, 0).Hash("shared")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.Equal(t, want, h.Hash("shared"))
			h.Hash(fmt.Sprintf("other_%d", i))
		}(i)
	}
	wg.Wait()
}
