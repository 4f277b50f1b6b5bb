// Package cache implements the cache store for measured post counts.
package cache

import (
	"cmp"
	"context"
	"encoding/json"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/engine/recheck"
	"go.trai.ch/zerr"
)

// Store reads and writes CacheEntries on a shared StateStore.
type Store struct {
	kv    ports.StateStore
	clock clockwork.Clock

	mu       sync.RWMutex
	policy   recheck.Policy
	cooldown time.Duration
}

// NewStore creates a Store. cooldown is the fixed refresh period for entries at
// or below their threshold.
func NewStore(kv ports.StateStore, clock clockwork.Clock, policy recheck.Policy, cooldown time.Duration) *Store {
	return &Store{
		kv:       kv,
		clock:    clock,
		policy:   policy,
		cooldown: cooldown,
	}
}

// Configure replaces the recheck policy and the refresh cooldown.
func (s *Store) Configure(policy recheck.Policy, cooldown time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy, s.cooldown = policy, cooldown
}

func (s *Store) tuning() (recheck.Policy, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, s.cooldown
}

// Get returns the entry for key, or nil if none is stored.
func (s *Store) Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error) {
	k := key.String()
	rec, ok, err := s.kv.Get(ctx, k)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "key", k)
	}
	if !ok {
		return nil, nil
	}
	return decodeEntry(k, rec.Value)
}

// NeedsRefresh reports whether entry must be measured again under threshold.
func (s *Store) NeedsRefresh(entry *domain.CacheEntry, threshold int) bool {
	if entry == nil {
		return true
	}

	now := s.clock.Now()
	if entry.Count <= threshold {
		_, cooldown := s.tuning()
		return now.Sub(entry.FetchedAt) > cooldown
	}

	return entry.HasRecheck() && !now.Before(entry.RecheckAt)
}

// Put stores m for key, replacing any previous entry, and schedules its recheck.
func (s *Store) Put(ctx context.Context, key domain.CacheKey, m domain.Measurement, threshold int) (domain.CacheEntry, error) {
	now := s.clock.Now()
	entry := domain.CacheEntry{
		Count:     m.Count,
		Truncated: m.Truncated,
		FetchedAt: now,
	}
	policy, cooldown := s.tuning()
	if at, ok := policy.Compute(now, recheck.Input{
		Count:      m.Count,
		Threshold:  threshold,
		Months:     key.Months,
		Truncated:  m.Truncated,
		Timestamps: m.Timestamps,
	}); ok {
		// Timestamps already outside the window would make the entry stale on
		// write; hold it for the refresh cooldown instead.
		if !at.After(now) {
			at = now.Add(cooldown)
		}
		entry.RecheckAt = at
	}

	if err := s.write(ctx, key.String(), entry); err != nil {
		return domain.CacheEntry{}, err
	}
	return entry, nil
}

// PurgeAll removes every cache entry and returns how many were removed.
// Limiter state is kept.
func (s *Store) PurgeAll(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, domain.CacheKeyPrefix)
	if err != nil {
		return 0, zerr.Wrap(domain.ErrStoreReadFailed, err.Error())
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return 0, zerr.Wrap(domain.ErrStoreWriteFailed, err.Error())
	}
	return len(keys), nil
}

// PurgeKey removes the entry for key so the next lookup measures again.
func (s *Store) PurgeKey(ctx context.Context, key domain.CacheKey) error {
	if err := s.kv.Delete(ctx, key.String()); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key.String())
	}
	return nil
}

// Filter selects entries in List.
type Filter string

const (
	// FilterAll lists every entry.
	FilterAll Filter = "all"
	// FilterLow lists entries at or below the threshold.
	FilterLow Filter = "low"
	// FilterHigh lists entries above the threshold.
	FilterHigh Filter = "high"
	// FilterRecheck lists entries whose recheck instant has passed.
	FilterRecheck Filter = "recheck"
)

// ListOptions narrows List results.
type ListOptions struct {
	Filter    Filter
	Threshold int
	// Query matches subjects case-insensitively by substring.
	Query string
}

// Listed is one cache entry with its key.
type Listed struct {
	Key   domain.CacheKey   `json:"key"`
	Entry domain.CacheEntry `json:"entry"`
}

// List returns the stored entries matching opts, most recently fetched first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Listed, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	query := strings.ToLower(strings.TrimSpace(opts.Query))

	out := make([]Listed, 0, len(all))
	for _, l := range all {
		if query != "" && !strings.Contains(strings.ToLower(l.Key.Subject), query) {
			continue
		}
		switch opts.Filter {
		case FilterLow:
			if l.Entry.Count > opts.Threshold {
				continue
			}
		case FilterHigh:
			if l.Entry.Count <= opts.Threshold {
				continue
			}
		case FilterRecheck:
			if !l.Entry.HasRecheck() || now.Before(l.Entry.RecheckAt) {
				continue
			}
		}
		out = append(out, l)
	}

	slices.SortStableFunc(out, func(a, b Listed) int {
		if c := b.Entry.FetchedAt.Compare(a.Entry.FetchedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
	return out, nil
}

// Export writes every cache entry as an indented JSON object keyed by cache key.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}

	dump := make(map[string]domain.CacheEntry, len(all))
	for _, l := range all {
		dump[l.Key.String()] = l.Entry
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return 0, zerr.Wrap(err, "failed to write export")
	}
	return len(dump), nil
}

// Import reads an Export dump and stores its entries. Keys outside the cache
// namespace are ignored.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var dump map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return 0, zerr.Wrap(err, "failed to read import")
	}

	keys := make([]string, 0, len(dump))
	for k := range dump {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	imported := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, domain.CacheKeyPrefix) {
			continue
		}
		key, err := domain.ParseCacheKey(k)
		if err != nil {
			return imported, err
		}
		entry, err := decodeEntry(k, dump[k])
		if err != nil {
			return imported, err
		}
		if entry == nil {
			continue
		}
		if err := s.write(ctx, key.String(), *entry); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// Backfill gives truncated entries stored without a recheck instant the
// truncated horizon, measured from when they were fetched.
func (s *Store) Backfill(ctx context.Context) (int, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}

	policy, _ := s.tuning()
	updated := 0
	for _, l := range all {
		if l.Entry.HasRecheck() || !l.Entry.Truncated {
			continue
		}
		from := l.Entry.FetchedAt
		if from.IsZero() {
			from = s.clock.Now()
		}
		l.Entry.RecheckAt = from.Add(policy.TruncatedHorizon(l.Key.Months))
		if err := s.write(ctx, l.Key.String(), l.Entry); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *Store) scan(ctx context.Context) ([]Listed, error) {
	keys, err := s.kv.Keys(ctx, domain.CacheKeyPrefix)
	if err != nil {
		return nil, zerr.Wrap(domain.ErrStoreReadFailed, err.Error())
	}

	out := make([]Listed, 0, len(keys))
	for _, k := range keys {
		key, err := domain.ParseCacheKey(k)
		if err != nil {
			continue
		}
		entry, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		out = append(out, Listed{Key: key, Entry: *entry})
	}
	return out, nil
}

func (s *Store) write(ctx context.Context, key string, entry domain.CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	return nil
}
