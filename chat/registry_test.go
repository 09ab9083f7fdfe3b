package chat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_TryRegister(t *testing.T) {
	t.Run("name can be claimed once", func(t *testing.T) {
		r := NewRegistry()
		first, second := NewOutbox(4), NewOutbox(4)

		assert.True(t, r.TryRegister("alice", first))
		assert.False(t, r.TryRegister("alice", second))

		sink, ok := r.Lookup("alice")
		require.True(t, ok)
		assert.Same(t, first, sink)
	})

	t.Run("names are case-sensitive", func(t *testing.T) {
		r := NewRegistry()
		assert.True(t, r.TryRegister("alice", NewOutbox(4)))
		assert.True(t, r.TryRegister("Alice", NewOutbox(4)))
		assert.Equal(t, 2, r.Len())
	})

	t.Run("reserved names are refused", func(t *testing.T) {
		r := NewRegistry("SERVER", "admin")
		assert.False(t, r.TryRegister("SERVER", NewOutbox(4)))
		assert.False(t, r.TryRegister("admin", NewOutbox(4)))
		assert.True(t, r.TryRegister("server", NewOutbox(4)))
	})

	t.Run("exactly one concurrent claim wins", func(t *testing.T) {
		r := NewRegistry()
		const contenders = 64

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(contenders)
		for range contenders {
			go func() {
				defer wg.Done()
				<-start
				if r.TryRegister("zed", NewOutbox(4)) {
					wins.Add(1)
				}
			}()
		}

		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, 1, r.Len())
	})
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.TryRegister("alice", NewOutbox(4)))

	r.Remove("alice")
	r.Remove("alice")

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.True(t, r.TryRegister("alice", NewOutbox(4)), "name is free again")
}

func TestRegistry_SnapshotAndNames(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		require.True(t, r.TryRegister(name, NewOutbox(4)))
	}

	assert.Len(t, r.Snapshot(), 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Names())

	t.Run("snapshot survives concurrent churn", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 200 {
				name := fmt.Sprintf("user-%d", i)
				r.TryRegister(name, NewOutbox(2))
				r.Remove(name)
			}
		}()
		go func() {
			defer wg.Done()
			for range 200 {
				for _, sink := range r.Snapshot() {
					_ = sink.Deliver("ping")
				}
			}
		}()
		wg.Wait()

		assert.Equal(t, []string{"alice", "bob", "carol"}, r.Names())
	})
}
