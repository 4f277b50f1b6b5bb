// Package kvtest holds the behavior every StateStore driver must share.
package kvtest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tally/internal/core/ports"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) ports.StateStore

// Run exercises store semantics against the driver built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(t.Context(), "cache:market:3m:nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		require.NoError(t, s.Put(ctx, "cache:market:3m:alice", []byte(`{"count":3}`)))
		rec, ok, err := s.Get(ctx, "cache:market:3m:alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"count":3}`, string(rec.Value))
		assert.Equal(t, uint64(1), rec.Version)

		require.NoError(t, s.Put(ctx, "cache:market:3m:alice", []byte(`{"count":4}`)))
		rec, _, err = s.Get(ctx, "cache:market:3m:alice")
		require.NoError(t, err)
		assert.JSONEq(t, `{"count":4}`, string(rec.Value))
		assert.Equal(t, uint64(2), rec.Version)
	})

	t.Run("CompareAndSwapCreate", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		v, ok, err := s.CompareAndSwap(ctx, "ratelimit:state", 0, []byte(`{"a":1}`))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(1), v)

		_, ok, err = s.CompareAndSwap(ctx, "ratelimit:state", 0, []byte(`{"a":2}`))
		require.NoError(t, err)
		assert.False(t, ok, "create must fail when the key exists")

		rec, _, err := s.Get(ctx, "ratelimit:state")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(rec.Value))
	})

	t.Run("CompareAndSwapVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		require.NoError(t, s.Put(ctx, "ratelimit:state", []byte(`{"a":1}`)))

		_, ok, err := s.CompareAndSwap(ctx, "ratelimit:state", 7, []byte(`{"a":2}`))
		require.NoError(t, err)
		assert.False(t, ok, "stale version must lose")

		v, ok, err := s.CompareAndSwap(ctx, "ratelimit:state", 1, []byte(`{"a":3}`))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, uint64(2), v)

		rec, _, err := s.Get(ctx, "ratelimit:state")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":3}`, string(rec.Value))
		assert.Equal(t, uint64(2), rec.Version)
	})

	t.Run("ConcurrentCompareAndSwap", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		require.NoError(t, s.Put(ctx, "ratelimit:state", []byte(`{"n":0}`)))

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range writers {
			wg.Go(func() {
				_, ok, err := s.CompareAndSwap(ctx, "ratelimit:state", 1, fmt.Appendf(nil, `{"n":%d}`, i+1))
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			})
		}
		wg.Wait()
		assert.Equal(t, 1, wins, "exactly one writer may win a version")
	})

	t.Run("KeysAndDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		for _, k := range []string{"cache:a:3m:x", "cache:b:6m:y", "ratelimit:state", "ratelimit:params"} {
			require.NoError(t, s.Put(ctx, k, []byte(`{}`)))
		}

		keys, err := s.Keys(ctx, "cache:")
		require.NoError(t, err)
		slices.Sort(keys)
		assert.Equal(t, []string{"cache:a:3m:x", "cache:b:6m:y"}, keys)

		require.NoError(t, s.Delete(ctx, keys...))
		require.NoError(t, s.Delete(ctx, "cache:missing:0m:z"))

		keys, err = s.Keys(ctx, "cache:")
		require.NoError(t, err)
		assert.Empty(t, keys)

		keys, err = s.Keys(ctx, "ratelimit:")
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("DeleteResetsVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "cache:a:3m:x", []byte(`{}`)))
		require.NoError(t, s.Delete(ctx, "cache:a:3m:x"))

		_, ok, err := s.CompareAndSwap(ctx, "cache:a:3m:x", 0, []byte(`{}`))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
