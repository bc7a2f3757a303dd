package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, store RoleStore, clock clockwork.Clock, metrics MetricsRecorder) *Cache {
	t.Helper()
	cache, err := NewCache(NewResolver(store, time.Second), CacheConfig{TTL: 5 * time.Minute, MaxEntries: 100},
		WithClock(clock), WithMetrics(metrics))
	require.NoError(t, err)
	return cache
}

func TestCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("hit within ttl", func(t *testing.T) {
		store := newMemStore()
		store.addUser(1, 10, nil)
		metrics := newRecordingMetrics()
		clock := clockwork.NewFakeClock()
		cache := newTestCache(t, store, clock, metrics)

		first, err := cache.Get(ctx, 1)
		require.NoError(t, err)
		clock.Advance(4 * time.Minute)
		second, err := cache.Get(ctx, 1)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), store.loads.Load())
		assert.Equal(t, 1, metrics.hits)
		assert.Equal(t, 1, metrics.misses)
	})

	t.Run("expired entry is resolved again", func(t *testing.T) {
		store := newMemStore()
		store.addUser(1, 10, nil)
		clock := clockwork.NewFakeClock()
		cache := newTestCache(t, store, clock, newRecordingMetrics())

		_, err := cache.Get(ctx, 1)
		require.NoError(t, err)
		clock.Advance(5 * time.Minute)
		_, err = cache.Get(ctx, 1)
		require.NoError(t, err)

		assert.Equal(t, int32(2), store.loads.Load())
	})

	t.Run("unknown user is cached", func(t *testing.T) {
		store := newMemStore()
		metrics := newRecordingMetrics()
		cache := newTestCache(t, store, clockwork.NewFakeClock(), metrics)

		for i := 0; i < 3; i++ {
			perms, err := cache.Get(ctx, 404)
			require.NoError(t, err)
			assert.Nil(t, perms)
		}

		assert.Equal(t, int32(1), store.loads.Load())
		assert.Equal(t, 2, metrics.negativeHits)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		store := newMemStore()
		store.addUser(1, 10, nil)
		store.setErr(errors.New("timeout"))
		cache := newTestCache(t, store, clockwork.NewFakeClock(), newRecordingMetrics())

		_, err := cache.Get(ctx, 1)
		assert.ErrorIs(t, err, ErrRoleStoreUnavailable)
		assert.Equal(t, 0, cache.Len())

		store.setErr(nil)
		perms, err := cache.Get(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, perms)
		assert.Equal(t, int32(2), store.loads.Load())
	})

	t.Run("bounded by max entries", func(t *testing.T) {
		store := newMemStore()
		for id := int64(1); id <= 3; id++ {
			store.addUser(id, 10, nil)
		}
		cache, err := NewCache(NewResolver(store, time.Second), CacheConfig{TTL: time.Minute, MaxEntries: 2})
		require.NoError(t, err)

		for id := int64(1); id <= 3; id++ {
			_, err := cache.Get(ctx, id)
			require.NoError(t, err)
		}
		assert.Equal(t, 2, cache.Len())
	})
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(1, 10, nil)
	store.addUser(2, 10, nil)
	metrics := newRecordingMetrics()
	cache := newTestCache(t, store, clockwork.NewFakeClock(), metrics)

	_, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	_, err = cache.Get(ctx, 2)
	require.NoError(t, err)

	cache.Invalidate(1)
	assert.Equal(t, 1, cache.Len())

	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Len())

	assert.Equal(t, 1, metrics.invalidations["user"])
	assert.Equal(t, 1, metrics.invalidations["all"])
}

func TestCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	store := newMemStore()
	store.addUser(1, 10, nil)
	store.gate = make(chan struct{})
	store.started = make(chan struct{}, 16)
	cache := newTestCache(t, store, clockwork.NewFakeClock(), newRecordingMetrics())

	const callers = 8
	results := make([]*UserPermissions, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			perms, err := cache.Get(context.Background(), 1)
			assert.NoError(t, err)
			results[i] = perms
		}(i)
	}

	<-store.started
	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Equal(t, int32(1), store.loads.Load())
	for _, perms := range results {
		assert.Same(t, results[0], perms)
	}
}

func TestCache_InvalidateDuringLoadDiscardsResult(t *testing.T) {
	store := newMemStore()
	store.addUser(1, 10, nil)
	store.gate = make(chan struct{})
	store.started = make(chan struct{}, 16)
	cache := newTestCache(t, store, clockwork.NewFakeClock(), newRecordingMetrics())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := cache.Get(context.Background(), 1)
		assert.NoError(t, err)
	}()

	<-store.started
	store.grantRole(1, "Auditor")
	cache.Invalidate(1)
	close(store.gate)
	<-done

	assert.Equal(t, 0, cache.Len())

	perms, err := cache.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, perms.HasRole("Auditor"))
	assert.Equal(t, int32(2), store.loads.Load())
}

func TestCache_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addUser(1, 10, nil)
	store.addUser(2, 10, nil)
	clock := clockwork.NewFakeClock()
	cache := newTestCache(t, store, clock, newRecordingMetrics())

	_, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	clock.Advance(3 * time.Minute)
	_, err = cache.Get(ctx, 2)
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, cache.PurgeExpired())
	assert.Equal(t, 1, cache.Len())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, cache.PurgeExpired())
	assert.Equal(t, 0, cache.Len())
}
