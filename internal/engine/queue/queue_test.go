package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tally/internal/adapters/kv"
	"go.trai.ch/tally/internal/adapters/logger"
	"go.trai.ch/tally/internal/adapters/telemetry"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports/mocks"
	"go.trai.ch/tally/internal/engine/cache"
	"go.trai.ch/tally/internal/engine/challenge"
	"go.trai.ch/tally/internal/engine/queue"
	"go.trai.ch/tally/internal/engine/ratelimit"
	"go.trai.ch/tally/internal/engine/recheck"
	"go.uber.org/mock/gomock"
)

var start = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

var (
	alice = domain.NewCacheKey("market", 3, "alice")
	bob   = domain.NewCacheKey("market", 3, "bob")
)

type harness struct {
	clock    *clockwork.FakeClock
	provider *mocks.MockMeasurementProvider
	store    *cache.Store
	limiter  *ratelimit.Limiter
	gate     *challenge.Gate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().CooldownStarted(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	mem := kv.NewMemory()
	clock := clockwork.NewFakeClockAt(start)
	log := logger.Discard()

	limits := domain.RateLimitSettings{
		Params: domain.RateLimitParams{AbusePause: 5 * time.Minute, ChallengePause: time.Minute},
	}

	return &harness{
		clock:    clock,
		provider: mocks.NewMockMeasurementProvider(ctrl),
		store:    cache.NewStore(mem, clock, recheck.DefaultPolicy(), 12*time.Hour),
		limiter: ratelimit.New(mem, clock, limits, log, notifier,
			ratelimit.WithJitter(func() float64 { return 1 })),
		gate: challenge.New(clock, domain.DefaultSettings().Challenge, notifier, log),
	}
}

func (h *harness) queue(concurrency int) *queue.Queue {
	return h.queueWith(h.store, concurrency)
}

func (h *harness) queueWith(c queue.Cache, concurrency int, opts ...queue.Option) *queue.Queue {
	return queue.New(c, h.limiter, h.gate, h.provider, h.clock,
		logger.Discard(), telemetry.NewNoOpTracer(), concurrency, opts...)
}

// run starts q and stops it when the test ends.
func run(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func measure(key domain.CacheKey) (any, any, any, any) {
	return gomock.Any(), key.Subject, key.Channel, key.Months
}

func TestQueue_MeasuresAndCaches(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)
	ctx := t.Context()

	h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{Count: 2}, nil)

	run(t, q)
	f := q.Submit(alice, 5)
	assert.NotEmpty(t, f.ID())
	assert.Equal(t, alice, f.Key())

	entry, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)
	assert.True(t, entry.FetchedAt.Equal(start))

	cached, err := h.store.Get(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 2, cached.Count)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Submitted)
	assert.Equal(t, 1, stats.Settled)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.InFlight)
}

func TestQueue_CoalescesSameKey(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)
	ctx := t.Context()

	started := make(chan struct{})
	release := make(chan struct{})
	h.provider.EXPECT().Measure(measure(alice)).
		DoAndReturn(func(context.Context, string, string, int) (domain.Measurement, error) {
			close(started)
			<-release
			return domain.Measurement{Count: 9}, nil
		}).Times(1)

	first := q.Submit(alice, 5)
	queued := q.Submit(alice, 5)
	assert.Same(t, first, queued, "queued jobs are coalesced")

	run(t, q)
	<-started

	inFlight := q.Submit(alice, 8)
	assert.Same(t, first, inFlight, "in-flight jobs are coalesced")
	assert.Equal(t, 1, q.Stats().InFlight)
	require.Len(t, q.Jobs(), 1)
	assert.Equal(t, domain.JobDispatched, q.Jobs()[0].State)

	close(release)

	a, err := first.Wait(ctx)
	require.NoError(t, err)
	b, err := inFlight.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 2, q.Stats().Coalesced)
}

func TestQueue_FIFO(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)
	ctx := t.Context()

	carol := domain.NewCacheKey("market", 3, "carol")
	gomock.InOrder(
		h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{Count: 1}, nil),
		h.provider.EXPECT().Measure(measure(bob)).Return(domain.Measurement{Count: 1}, nil),
		h.provider.EXPECT().Measure(measure(carol)).Return(domain.Measurement{Count: 1}, nil),
	)

	futures := []*queue.Future{q.Submit(alice, 5), q.Submit(bob, 5), q.Submit(carol, 5)}
	require.Len(t, q.Jobs(), 3)
	assert.Equal(t, alice.String(), q.Jobs()[0].Key)

	run(t, q)
	for _, f := range futures {
		_, err := f.Wait(ctx)
		require.NoError(t, err)
	}
}

func TestQueue_RecoverableFailureRequeuesAtHead(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		pause time.Duration
	}{
		{name: "rate limited", err: domain.ErrRateLimited, pause: 5 * time.Minute},
		{name: "challenge timeout", err: domain.ErrChallengeTimeout, pause: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			q := h.queue(1)
			ctx := t.Context()

			gomock.InOrder(
				h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{}, tt.err),
				h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{Count: 4}, nil),
				h.provider.EXPECT().Measure(measure(bob)).Return(domain.Measurement{Count: 1}, nil),
			)

			fa := q.Submit(alice, 5)
			fb := q.Submit(bob, 5)
			run(t, q)

			require.Eventually(t, func() bool { return q.Stats().Requeued == 1 }, time.Second, time.Millisecond)

			// The worker is parked on the cooldown.
			require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
			select {
			case <-fa.Done():
				t.Fatal("job settled during cooldown")
			default:
			}

			st, err := h.limiter.Status(ctx)
			require.NoError(t, err)
			assert.True(t, st.State.CooldownUntil.Equal(start.Add(tt.pause)))

			h.clock.Advance(tt.pause)

			entry, err := fa.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, entry.Count)
			assert.True(t, entry.FetchedAt.Equal(start.Add(tt.pause)), "no dispatch before the cooldown ends")

			_, err = fb.Wait(ctx)
			require.NoError(t, err)
		})
	}
}

func TestQueue_ResumeWakesParkedWorker(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)
	ctx := t.Context()

	_, err := h.limiter.ReportAbuseSignal(ctx, domain.KindRateLimited)
	require.NoError(t, err)

	h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{Count: 3}, nil)

	f := q.Submit(alice, 5)
	run(t, q)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	require.NoError(t, h.limiter.ForceResume(ctx))
	q.Resume()

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	entry, err := f.Wait(wctx)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Count)
	assert.True(t, entry.FetchedAt.Equal(start), "dispatched without advancing the clock")
}

func TestQueue_ParkedWorkerNoticesExternalResume(t *testing.T) {
	h := newHarness(t)
	q := h.queueWith(h.store, 1, queue.WithRecheckInterval(10*time.Second))
	ctx := t.Context()

	_, err := h.limiter.ReportAbuseSignal(ctx, domain.KindRateLimited)
	require.NoError(t, err)

	h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{Count: 3}, nil)

	f := q.Submit(alice, 5)
	run(t, q)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	// Another process lifts the cooldown; this queue is not told.
	require.NoError(t, h.limiter.ForceResume(ctx))
	h.clock.Advance(10 * time.Second)

	entry, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, entry.FetchedAt.Equal(start.Add(10*time.Second)))
}

func TestQueue_OtherFailuresSurface(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.ErrorKind
	}{
		{name: "parse", err: domain.ErrParse, kind: domain.KindParse},
		{name: "network", err: domain.ErrNetwork, kind: domain.KindNetwork},
		{name: "unclassified", err: errors.New("boom"), kind: domain.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			q := h.queue(1)
			ctx := t.Context()

			h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{}, tt.err).Times(1)

			run(t, q)
			_, err := q.Submit(alice, 5).Wait(ctx)
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.kind, domain.KindOf(err))

			st, err := h.limiter.Status(ctx)
			require.NoError(t, err)
			assert.Zero(t, st.Remaining, "no cooldown for non-abuse failures")

			cached, err := h.store.Get(ctx, alice)
			require.NoError(t, err)
			assert.Nil(t, cached)
			assert.Equal(t, 1, q.Stats().Failed)
		})
	}
}

type failingCache struct{}

func (failingCache) Put(context.Context, domain.CacheKey, domain.Measurement, int) (domain.CacheEntry, error) {
	return domain.CacheEntry{}, domain.ErrStoreWriteFailed
}

func TestQueue_StoreFailureFailsFuture(t *testing.T) {
	h := newHarness(t)
	q := h.queueWith(failingCache{}, 1)

	h.provider.EXPECT().Measure(measure(alice)).Return(domain.Measurement{Count: 1}, nil)

	run(t, q)
	_, err := q.Submit(alice, 5).Wait(t.Context())
	require.ErrorIs(t, err, domain.ErrStoreWriteFailed)
}

func TestQueue_ShutdownFailsPendingJobs(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)

	f := q.Submit(alice, 5)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, q.Run(ctx))

	_, err := f.Wait(t.Context())
	require.ErrorIs(t, err, domain.ErrQueueStopped)

	_, err = q.Submit(bob, 5).Wait(t.Context())
	require.ErrorIs(t, err, domain.ErrQueueStopped)
}

func TestQueue_ShutdownFailsInFlightJob(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)

	started := make(chan struct{})
	h.provider.EXPECT().Measure(measure(alice)).
		DoAndReturn(func(ctx context.Context, _ string, _ string, _ int) (domain.Measurement, error) {
			close(started)
			<-ctx.Done()
			return domain.Measurement{}, ctx.Err()
		})

	f := q.Submit(alice, 5)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)

	_, err := f.Wait(t.Context())
	require.ErrorIs(t, err, domain.ErrQueueStopped)
}

func TestQueue_ConcurrentSlots(t *testing.T) {
	h := newHarness(t)
	q := h.queue(2)
	ctx := t.Context()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	block := func(context.Context, string, string, int) (domain.Measurement, error) {
		started <- struct{}{}
		<-release
		return domain.Measurement{Count: 1}, nil
	}
	h.provider.EXPECT().Measure(measure(alice)).DoAndReturn(block)
	h.provider.EXPECT().Measure(measure(bob)).DoAndReturn(block)

	fa := q.Submit(alice, 5)
	fb := q.Submit(bob, 5)
	run(t, q)

	<-started
	<-started
	assert.Equal(t, 2, q.Stats().InFlight)
	close(release)

	_, err := fa.Wait(ctx)
	require.NoError(t, err)
	_, err = fb.Wait(ctx)
	require.NoError(t, err)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	h := newHarness(t)
	q := h.queue(1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := q.Submit(alice, 5).Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
