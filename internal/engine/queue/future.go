package queue

import (
	"context"
	"sync"

	"go.trai.ch/tally/internal/core/domain"
)

// Future is the completion handle of a fetch job. Every caller coalesced onto
// the same job observes the same result.
type Future struct {
	id   string
	key  domain.CacheKey
	done chan struct{}
	once sync.Once

	entry domain.CacheEntry
	err   error
}

func newFuture(id string, key domain.CacheKey) *Future {
	return &Future{id: id, key: key, done: make(chan struct{})}
}

// ID returns the job identifier.
func (f *Future) ID() string {
	return f.id
}

// Key returns the cache key being measured.
func (f *Future) Key() domain.CacheKey {
	return f.key
}

// Done is closed once the job has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job settles or ctx is done. Abandoning a wait does not
// cancel the job.
func (f *Future) Wait(ctx context.Context) (domain.CacheEntry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return domain.CacheEntry{}, ctx.Err()
	}
}

func (f *Future) resolve(entry domain.CacheEntry, err error) {
	f.once.Do(func() {
		f.entry, f.err = entry, err
		close(f.done)
	})
}
