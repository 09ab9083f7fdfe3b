package roster

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedFetch(count *atomic.Int32, names ...string) FetchFunc {
	return func(ctx context.Context) ([]string, error) {
		count.Add(1)
		return names, nil
	}
}

func TestNewMemoryCache(t *testing.T) {
	t.Run("non-positive ttl falls back to default", func(t *testing.T) {
		c := NewMemoryCache(0)
		require.NotNil(t, c)
		assert.Equal(t, DefaultTTL, c.ttl)
	})

	t.Run("keeps explicit ttl", func(t *testing.T) {
		assert.Equal(t, time.Minute, NewMemoryCache(time.Minute).ttl)
	})
}

func TestMemoryCache_Names(t *testing.T) {
	ctx := context.Background()

	t.Run("miss fetches and hit reuses", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		var calls atomic.Int32

		names, err := c.Names(ctx, fixedFetch(&calls, "alice", "bob"))
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, names)

		names, err = c.Names(ctx, fixedFetch(&calls, "should", "not", "run"))
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, names)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("fetch error is returned and not cached", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		_, err := c.Names(ctx, func(ctx context.Context) ([]string, error) {
			return nil, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		var calls atomic.Int32
		names, err := c.Names(ctx, fixedFetch(&calls, "carol"))
		require.NoError(t, err)
		assert.Equal(t, []string{"carol"}, names)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("callers cannot corrupt the cached listing", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		var calls atomic.Int32

		names, err := c.Names(ctx, fixedFetch(&calls, "alice"))
		require.NoError(t, err)
		names[0] = "mallory"

		names, err = c.Names(ctx, fixedFetch(&calls, "unused"))
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, names)
	})

	t.Run("expired entry is fetched again", func(t *testing.T) {
		c := NewMemoryCache(20 * time.Millisecond)
		var calls atomic.Int32

		_, err := c.Names(ctx, fixedFetch(&calls, "alice"))
		require.NoError(t, err)
		time.Sleep(40 * time.Millisecond)
		_, err = c.Names(ctx, fixedFetch(&calls, "alice"))
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		var calls atomic.Int32
		release := make(chan struct{})
		fetch := func(ctx context.Context) ([]string, error) {
			calls.Add(1)
			<-release
			return []string{"alice"}, nil
		}

		const callers = 20
		var wg sync.WaitGroup
		wg.Add(callers)
		for range callers {
			go func() {
				defer wg.Done()
				names, err := c.Names(ctx, fetch)
				assert.NoError(t, err)
				assert.Equal(t, []string{"alice"}, names)
			}()
		}

		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestMemoryCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	var calls atomic.Int32

	_, err := c.Names(ctx, fixedFetch(&calls, "alice"))
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx))

	names, err := c.Names(ctx, fixedFetch(&calls, "alice", "bob"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.Equal(t, int32(2), calls.Load())

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, c.Invalidate(cancelled), context.Canceled)
	})
}
