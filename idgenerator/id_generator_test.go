package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("returns non-nil generator", func(t *testing.T) {
		require.NotNil(t, NewIdGenerator("s", 0))
	})

	t.Run("first Id returns startValue+1", func(t *testing.T) {
		assert.Equal(t, uint32(1), NewIdGenerator("s", 0).Id())
		assert.Equal(t, uint32(101), NewIdGenerator("s", 100).Id())
	})

	t.Run("wraps around at max uint32", func(t *testing.T) {
		gen := NewIdGenerator("s", ^uint32(0))
		assert.Equal(t, uint32(0), gen.Id())
	})
}

func TestIdGenerator_Last(t *testing.T) {
	gen := NewIdGenerator("s", 10)
	assert.Equal(t, uint32(10), gen.Last())
	gen.Id()
	gen.Id()
	assert.Equal(t, uint32(12), gen.Last())
}

func TestIdGenerator_Label(t *testing.T) {
	t.Run("with prefix", func(t *testing.T) {
		gen := NewIdGenerator("s", 0)
		assert.Equal(t, "s-7", gen.Label(7))
	})

	t.Run("without prefix", func(t *testing.T) {
		gen := NewIdGenerator("", 0)
		assert.Equal(t, "42", gen.Label(42))
	})
}

func TestIdGenerator_Concurrent(t *testing.T) {
	gen := NewIdGenerator("s", 0)
	const goroutines = 50
	const idsPerGoroutine = 200

	var mu sync.Mutex
	seen := make(map[uint32]bool, goroutines*idsPerGoroutine)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			local := make([]uint32, 0, idsPerGoroutine)
			for range idsPerGoroutine {
				local = append(local, gen.Id())
			}

			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*idsPerGoroutine)
	assert.Equal(t, uint32(goroutines*idsPerGoroutine), gen.Last())
}
