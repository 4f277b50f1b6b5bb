package cache_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tally/internal/adapters/kv"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports/mocks"
	"go.trai.ch/tally/internal/engine/cache"
	"go.trai.ch/tally/internal/engine/recheck"
	"go.uber.org/mock/gomock"
)

const (
	day      = 24 * time.Hour
	cooldown = 12 * time.Hour
)

var start = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*cache.Store, *kv.Memory, *clockwork.FakeClock) {
	t.Helper()
	mem := kv.NewMemory()
	clock := clockwork.NewFakeClockAt(start)
	return cache.NewStore(mem, clock, recheck.DefaultPolicy(), cooldown), mem, clock
}

func TestStore_GetMissing(t *testing.T) {
	s, _, _ := newStore(t)

	entry, err := s.Get(t.Context(), domain.NewCacheKey("market", 3, "alice"))
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.True(t, s.NeedsRefresh(entry, 5))
}

func TestStore_GetWithoutCount(t *testing.T) {
	s, mem, _ := newStore(t)
	key := domain.NewCacheKey("market", 3, "alice")
	require.NoError(t, mem.Put(t.Context(), key.String(), []byte(`{"fetched_at":"2024-05-01T00:00:00Z"}`)))

	entry, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	assert.Nil(t, entry, "an entry without a count reads as absent")
}

func TestStore_GetCorrupt(t *testing.T) {
	s, mem, _ := newStore(t)
	key := domain.NewCacheKey("market", 3, "alice")
	require.NoError(t, mem.Put(t.Context(), key.String(), []byte(`[1,2]`)))

	_, err := s.Get(t.Context(), key)
	require.ErrorIs(t, err, domain.ErrStoreCorrupt)
}

func TestStore_PutBelowThreshold(t *testing.T) {
	s, _, clock := newStore(t)
	key := domain.NewCacheKey("market", 3, "alice")

	entry, err := s.Put(t.Context(), key, domain.Measurement{Count: 2, Timestamps: []time.Time{start.Add(-day)}}, 5)
	require.NoError(t, err)
	assert.Equal(t, start, entry.FetchedAt)
	assert.False(t, entry.HasRecheck())

	got, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Count)
	assert.True(t, got.FetchedAt.Equal(start))

	// The cooldown boundary is exclusive.
	clock.Advance(cooldown)
	assert.False(t, s.NeedsRefresh(got, 5))
	clock.Advance(time.Nanosecond)
	assert.True(t, s.NeedsRefresh(got, 5))
}

func TestStore_PutAboveThreshold(t *testing.T) {
	s, _, clock := newStore(t)
	key := domain.NewCacheKey("market", 3, "bob")

	ts := []time.Time{start.Add(-60 * day), start.Add(-40 * day), start.Add(-5 * day)}
	entry, err := s.Put(t.Context(), key, domain.Measurement{Count: 3, Timestamps: ts}, 1)
	require.NoError(t, err)

	want := ts[1].AddDate(0, 3, 0)
	assert.Equal(t, want, entry.RecheckAt)

	// Stable past the fixed cooldown until the recheck instant.
	clock.Advance(want.Sub(start) - time.Second)
	assert.False(t, s.NeedsRefresh(&entry, 1))
	clock.Advance(time.Second)
	assert.True(t, s.NeedsRefresh(&entry, 1), "recheck boundary is inclusive")
}

func TestStore_NeedsRefreshAboveThresholdWithoutRecheck(t *testing.T) {
	s, _, clock := newStore(t)
	entry := &domain.CacheEntry{Count: 40, FetchedAt: start}

	clock.Advance(365 * day)
	assert.False(t, s.NeedsRefresh(entry, 5))
}

func TestStore_NeedsRefreshIgnoresRecheckBelowThreshold(t *testing.T) {
	s, _, clock := newStore(t)
	entry := &domain.CacheEntry{Count: 4, FetchedAt: start, RecheckAt: start.Add(time.Hour)}

	clock.Advance(2 * time.Hour)
	assert.False(t, s.NeedsRefresh(entry, 5))
}

func TestStore_PutStaleTimestampsWaitForCooldown(t *testing.T) {
	s, _, clock := newStore(t)
	key := domain.NewCacheKey("market", 1, "alice")

	entry, err := s.Put(t.Context(), key, domain.Measurement{
		Count:      2,
		Timestamps: []time.Time{start.Add(-200 * day), start.Add(-190 * day)},
	}, 0)
	require.NoError(t, err)
	assert.False(t, entry.RecheckAt.Before(entry.FetchedAt))
	assert.True(t, entry.RecheckAt.Equal(start.Add(cooldown)))
	assert.False(t, s.NeedsRefresh(&entry, 0))

	clock.Advance(cooldown)
	assert.True(t, s.NeedsRefresh(&entry, 0))
}

func TestStore_PutTruncated(t *testing.T) {
	s, _, _ := newStore(t)

	entry, err := s.Put(t.Context(), domain.NewCacheKey("market", 6, "carol"), domain.Measurement{Count: 30, Truncated: true}, 10)
	require.NoError(t, err)
	assert.Equal(t, start.Add(90*day), entry.RecheckAt)
}

func TestStore_PutOverwrites(t *testing.T) {
	s, _, clock := newStore(t)
	key := domain.NewCacheKey("market", 3, "dave")

	_, err := s.Put(t.Context(), key, domain.Measurement{Count: 1}, 5)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = s.Put(t.Context(), key, domain.Measurement{Count: 2}, 5)
	require.NoError(t, err)

	got, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
	assert.True(t, got.FetchedAt.Equal(start.Add(time.Hour)))
}

func TestStore_PutWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStateStore(ctrl)
	store.EXPECT().Put(gomock.Any(), "cache:market:3m:erin", gomock.Any()).Return(errors.New("disk full"))

	s := cache.NewStore(store, clockwork.NewFakeClockAt(start), recheck.DefaultPolicy(), cooldown)
	_, err := s.Put(context.Background(), domain.NewCacheKey("market", 3, "erin"), domain.Measurement{Count: 1}, 5)
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStore_Purge(t *testing.T) {
	s, mem, _ := newStore(t)
	ctx := t.Context()

	a := domain.NewCacheKey("market", 3, "a")
	b := domain.NewCacheKey("market", 3, "b")
	for _, k := range []domain.CacheKey{a, b} {
		_, err := s.Put(ctx, k, domain.Measurement{Count: 1}, 5)
		require.NoError(t, err)
	}
	require.NoError(t, mem.Put(ctx, domain.RateLimitStateKey, []byte(`{}`)))

	require.NoError(t, s.PurgeKey(ctx, a))
	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := mem.Get(ctx, domain.RateLimitStateKey)
	require.NoError(t, err)
	assert.True(t, ok, "limiter state must survive a cache purge")

	n, err = s.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_List(t *testing.T) {
	s, mem, clock := newStore(t)
	ctx := t.Context()

	_, err := s.Put(ctx, domain.NewCacheKey("market", 3, "Alice"), domain.Measurement{Count: 2}, 5)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.Put(ctx, domain.NewCacheKey("market", 3, "bob"), domain.Measurement{
		Count:      7,
		Timestamps: []time.Time{start.Add(-80 * day), start.Add(-70 * day), start.Add(-60 * day)},
	}, 5)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.Put(ctx, domain.NewCacheKey("market", 6, "malice"), domain.Measurement{Count: 30, Truncated: true}, 5)
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, domain.RateLimitStateKey, []byte(`{}`)))

	all, err := s.List(ctx, cache.ListOptions{Filter: cache.FilterAll})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "malice", all[0].Key.Subject, "newest first")
	assert.Equal(t, "Alice", all[2].Key.Subject)

	low, err := s.List(ctx, cache.ListOptions{Filter: cache.FilterLow, Threshold: 5})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Alice", low[0].Key.Subject)

	high, err := s.List(ctx, cache.ListOptions{Filter: cache.FilterHigh, Threshold: 5})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	query, err := s.List(ctx, cache.ListOptions{Query: "ALICE"})
	require.NoError(t, err)
	assert.Len(t, query, 2)

	// bob's recheck lands 60 days before now plus three months; move past it.
	clock.Advance(40 * day)
	due, err := s.List(ctx, cache.ListOptions{Filter: cache.FilterRecheck})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "bob", due[0].Key.Subject)
}

func TestStore_ExportImport(t *testing.T) {
	src, mem, _ := newStore(t)
	ctx := t.Context()

	_, err := src.Put(ctx, domain.NewCacheKey("market", 3, "alice"), domain.Measurement{Count: 2}, 5)
	require.NoError(t, err)
	_, err = src.Put(ctx, domain.NewCacheKey("market", 6, "bob"), domain.Measurement{Count: 30, Truncated: true}, 10)
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, domain.RateLimitStateKey, []byte(`{"cooldown_until":"2024-05-20T11:00:00Z"}`)))

	var buf bytes.Buffer
	n, err := src.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, buf.String(), domain.RateLimitStateKey)

	dst, dstMem, _ := newStore(t)
	n, err = dst.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.Get(ctx, domain.NewCacheKey("market", 6, "bob"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Truncated)
	assert.True(t, got.RecheckAt.Equal(start.Add(90*day)))

	_, ok, err := dstMem.Get(ctx, domain.RateLimitStateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ImportSkipsForeignKeys(t *testing.T) {
	s, _, _ := newStore(t)

	n, err := s.Import(t.Context(), bytes.NewBufferString(`{
		"ratelimit:state": {"cooldown_until": "2030-01-01T00:00:00Z"},
		"cache:market:3m:alice": {"count": 4, "fetched_at": "2024-05-01T00:00:00Z"},
		"cache:market:3m:ghost": {"fetched_at": "2024-05-01T00:00:00Z"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ImportRejectsBadKey(t *testing.T) {
	s, _, _ := newStore(t)

	_, err := s.Import(t.Context(), bytes.NewBufferString(`{"cache:broken": {"count": 1}}`))
	require.ErrorIs(t, err, domain.ErrInvalidCacheKey)
}

func TestStore_Backfill(t *testing.T) {
	s, mem, _ := newStore(t)
	ctx := t.Context()

	fetched := start.Add(-10 * day)
	legacy := map[string]string{
		"cache:market:6m:old":     `{"count": 40, "truncated": true, "fetched_at": "` + fetched.Format(time.RFC3339) + `"}`,
		"cache:market:0m:forever": `{"count": 40, "truncated": true, "fetched_at": "` + fetched.Format(time.RFC3339) + `"}`,
		"cache:market:3m:nodate":  `{"count": 40, "truncated": true}`,
		"cache:market:3m:exact":   `{"count": 2, "fetched_at": "` + fetched.Format(time.RFC3339) + `"}`,
	}
	for k, v := range legacy {
		require.NoError(t, mem.Put(ctx, k, []byte(v)))
	}

	n, err := s.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	check := func(subject string, months int, want time.Time) {
		t.Helper()
		got, err := s.Get(ctx, domain.NewCacheKey("market", months, subject))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.RecheckAt.Equal(want), "%s: got %s want %s", subject, got.RecheckAt, want)
	}
	check("old", 6, fetched.Add(90*day))
	check("forever", 0, fetched.Add(30*day))
	check("nodate", 3, start.Add(45*day))

	exact, err := s.Get(ctx, domain.NewCacheKey("market", 3, "exact"))
	require.NoError(t, err)
	assert.False(t, exact.HasRecheck())

	n, err = s.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "backfill is idempotent")
}

func TestStore_Configure(t *testing.T) {
	s, _, clock := newStore(t)
	entry := &domain.CacheEntry{Count: 2, FetchedAt: clock.Now()}

	clock.Advance(2 * time.Hour)
	assert.False(t, s.NeedsRefresh(entry, 5))

	s.Configure(recheck.DefaultPolicy(), time.Hour)
	assert.True(t, s.NeedsRefresh(entry, 5))
}
