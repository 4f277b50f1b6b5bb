// Package queue implements the FIFO fetch queue that turns cache misses into
// rate-limited measurements.
package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/engine/challenge"
	"go.trai.ch/tally/internal/engine/ratelimit"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Cache stores finished measurements.
type Cache interface {
	Put(ctx context.Context, key domain.CacheKey, m domain.Measurement, threshold int) (domain.CacheEntry, error)
}

// Limiter grants dispatch slots and records abuse signals.
type Limiter interface {
	Reserve(ctx context.Context) (ratelimit.Outcome, error)
	ReportAbuseSignal(ctx context.Context, kind domain.ErrorKind) (time.Time, error)
}

// Gate runs one attempt at a time, absorbing verification pages.
type Gate interface {
	Run(ctx context.Context, subject string, attempt challenge.Attempt) (domain.Measurement, error)
}

// Stats counts jobs by lifecycle stage.
type Stats struct {
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Submitted int `json:"submitted"`
	Coalesced int `json:"coalesced"`
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
}

// JobInfo describes an unsettled job.
type JobInfo struct {
	ID       string          `json:"id"`
	Key      string          `json:"key"`
	State    domain.JobState `json:"state"`
	Attempts int             `json:"attempts"`
}

type job struct {
	id        string
	key       domain.CacheKey
	threshold int
	state     domain.JobState
	attempts  int
	future    *Future
}

// Queue holds fetch jobs in FIFO order and dispatches them from a fixed
// number of worker slots.
type Queue struct {
	cache       Cache
	limiter     Limiter
	gate        Gate
	provider    ports.MeasurementProvider
	clock       clockwork.Clock
	log         ports.Logger
	tracer      ports.Tracer
	concurrency int
	recheck     time.Duration

	wake    chan struct{}
	resumed chan struct{}

	mu      sync.Mutex
	pending []*job
	jobs    map[domain.CacheKey]*job
	stopped bool
	stats   Stats
}

// DefaultRecheckInterval bounds how long a parked worker waits before asking
// the limiter again, so cooldowns lifted by another process are noticed.
const DefaultRecheckInterval = 15 * time.Second

// Option configures a Queue.
type Option func(*Queue)

// WithRecheckInterval sets the longest single wait of a parked worker.
func WithRecheckInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.recheck = d
		}
	}
}

// New creates a Queue. concurrency below one is treated as one.
func New(
	cache Cache,
	limiter Limiter,
	gate Gate,
	provider ports.MeasurementProvider,
	clock clockwork.Clock,
	log ports.Logger,
	tracer ports.Tracer,
	concurrency int,
	opts ...Option,
) *Queue {
	q := &Queue{
		cache:       cache,
		limiter:     limiter,
		gate:        gate,
		provider:    provider,
		clock:       clock,
		log:         log,
		tracer:      tracer,
		concurrency: max(concurrency, 1),
		recheck:     DefaultRecheckInterval,
		wake:        make(chan struct{}, 1),
		resumed:     make(chan struct{}),
		jobs:        make(map[domain.CacheKey]*job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Resume wakes every worker parked on a cooldown so it asks the limiter again.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()

	close(q.resumed)
	q.resumed = make(chan struct{})
}

// Submit enqueues a measurement of key. While a job for the same key is queued
// or in flight, the existing Future is returned and threshold is ignored.
func (q *Queue) Submit(key domain.CacheKey, threshold int) *Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		f := newFuture("", key)
		f.resolve(domain.CacheEntry{}, zerr.With(zerr.Wrap(domain.ErrQueueStopped, "submit rejected"), "key", key.String()))
		return f
	}

	if j, ok := q.jobs[key]; ok {
		q.stats.Coalesced++
		return j.future
	}

	id := uuid.NewString()
	j := &job{
		id:        id,
		key:       key,
		threshold: threshold,
		state:     domain.JobQueued,
		future:    newFuture(id, key),
	}
	q.jobs[key] = j
	q.pending = append(q.pending, j)
	q.stats.Submitted++
	q.signal()

	q.log.Debug("measurement queued", "key", key.String(), "job", id)
	return j.future
}

// Run processes jobs until ctx is done. Jobs still unsettled afterwards fail
// with ErrQueueStopped, and later submissions are rejected.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range q.concurrency {
		g.Go(func() error {
			return q.work(ctx)
		})
	}
	err := g.Wait()
	q.shutdown()
	return err
}

// Stats returns the job counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Pending = len(q.pending)
	s.InFlight = len(q.jobs) - len(q.pending)
	return s
}

// Jobs lists unsettled jobs, queued ones in dispatch order first.
func (q *Queue) Jobs() []JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	infos := make([]JobInfo, 0, len(q.jobs))
	for _, j := range q.pending {
		infos = append(infos, j.info())
	}
	for _, j := range q.jobs {
		if !slices.Contains(q.pending, j) {
			infos = append(infos, j.info())
		}
	}
	return infos
}

func (j *job) info() JobInfo {
	return JobInfo{ID: j.id, Key: j.key.String(), State: j.state, Attempts: j.attempts}
}

func (q *Queue) work(ctx context.Context) error {
	for {
		j, ok := q.next(ctx)
		if !ok {
			return nil
		}
		q.process(ctx, j)
	}
}

// next pops the oldest queued job, waiting for one if the queue is empty.
func (q *Queue) next(ctx context.Context) (*job, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending = q.pending[1:]
			j.state = domain.JobDispatched
			if len(q.pending) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return j, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// signal wakes one idle worker. Callers hold q.mu.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) process(ctx context.Context, j *job) {
	ctx, span := q.tracer.Start(ctx, "tally.measure")
	defer span.End()
	span.SetAttribute("tally.key", j.key.String())
	span.SetAttribute("tally.job", j.id)

	if err := q.awaitSlot(ctx, j); err != nil {
		if ctx.Err() == nil {
			span.RecordError(err)
			q.settle(j, domain.CacheEntry{}, err)
		}
		return
	}

	q.mu.Lock()
	j.attempts++
	attempt := j.attempts
	q.mu.Unlock()
	span.SetAttribute("tally.attempt", attempt)

	key := j.key
	m, err := q.gate.Run(ctx, key.Subject, func(actx context.Context) (domain.Measurement, error) {
		return q.provider.Measure(actx, key.Subject, key.Channel, key.Months)
	})

	kind := domain.KindOf(err)
	span.SetAttribute("tally.outcome", kind.String())

	switch {
	case err == nil:
		entry, perr := q.cache.Put(ctx, key, m, j.threshold)
		if perr != nil {
			span.RecordError(perr)
			q.settle(j, domain.CacheEntry{}, perr)
			return
		}
		q.log.Info("measured", "key", key.String(), "count", entry.Label())
		q.settle(j, entry, nil)

	case kind.Recoverable():
		until, rerr := q.limiter.ReportAbuseSignal(ctx, kind)
		if rerr != nil {
			span.RecordError(rerr)
			q.settle(j, domain.CacheEntry{}, errors.Join(err, rerr))
			return
		}
		q.log.Warn("measurement deferred", "key", key.String(), "kind", kind.String(), "until", until)
		q.requeue(j)

	case ctx.Err() != nil:
		// Shutdown settles the job.

	default:
		span.RecordError(err)
		q.settle(j, domain.CacheEntry{}, err)
	}
}

// awaitSlot parks until the limiter grants a dispatch. A Resume or the
// recheck interval ends a wait early.
func (q *Queue) awaitSlot(ctx context.Context, j *job) error {
	for {
		q.mu.Lock()
		resumed := q.resumed
		q.mu.Unlock()

		out, err := q.limiter.Reserve(ctx)
		if err != nil {
			return err
		}
		if out.Proceed {
			return nil
		}

		q.log.Debug("waiting for dispatch slot", "key", j.key.String(), "until", out.WaitUntil)
		select {
		case <-q.clock.After(min(out.WaitUntil.Sub(q.clock.Now()), q.recheck)):
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) requeue(j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	j.state = domain.JobRequeued
	q.pending = slices.Insert(q.pending, 0, j)
	q.stats.Requeued++
	q.signal()
}

func (q *Queue) settle(j *job, entry domain.CacheEntry, err error) {
	q.mu.Lock()
	if q.jobs[j.key] == j {
		delete(q.jobs, j.key)
	}
	j.state = domain.JobSettled
	q.stats.Settled++
	if err != nil {
		q.stats.Failed++
	}
	q.mu.Unlock()

	if err != nil {
		q.log.Warn("measurement failed", "key", j.key.String(), "kind", domain.KindOf(err).String())
	}
	j.future.resolve(entry, err)
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	q.stopped = true
	unsettled := make([]*job, 0, len(q.jobs))
	for _, j := range q.jobs {
		unsettled = append(unsettled, j)
	}
	q.mu.Unlock()

	for _, j := range unsettled {
		q.settle(j, domain.CacheEntry{}, zerr.With(zerr.Wrap(domain.ErrQueueStopped, "job abandoned"), "key", j.key.String()))
	}

	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}
