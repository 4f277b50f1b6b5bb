// Package ratelimit implements the process-wide dispatch limiter shared through
// the state store.
package ratelimit

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
)

// maxSwapAttempts bounds the read-modify-write loop on the shared state.
const maxSwapAttempts = 16

// Outcome is the answer to Reserve.
type Outcome struct {
	// Proceed is true when the caller may dispatch now.
	Proceed bool
	// WaitUntil is the earliest instant to ask again when Proceed is false.
	WaitUntil time.Time
}

// Status is a snapshot of the limiter for status surfaces.
type Status struct {
	State          domain.RateLimitState  `json:"state"`
	Params         domain.RateLimitParams `json:"params"`
	Remaining      time.Duration          `json:"remaining"`
	NextDispatchAt time.Time              `json:"next_dispatch_at,omitzero"`
}

// Limiter decides when the next measurement may start. All state lives in the
// StateStore; Reserve's compare-and-swap is the serialization point between
// processes.
type Limiter struct {
	kv       ports.StateStore
	clock    clockwork.Clock
	log      ports.Logger
	notifier ports.Notifier
	jitter   func() float64

	mu       sync.RWMutex
	defaults domain.RateLimitParams
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithJitter replaces the spacing jitter source.
func WithJitter(fn func() float64) Option {
	return func(l *Limiter) {
		l.jitter = fn
	}
}

// New creates a Limiter. settings supplies the default parameters and the
// jitter range.
func New(
	kv ports.StateStore,
	clock clockwork.Clock,
	settings domain.RateLimitSettings,
	log ports.Logger,
	notifier ports.Notifier,
	opts ...Option,
) *Limiter {
	lo, hi := settings.JitterMin, settings.JitterMax
	l := &Limiter{
		kv:       kv,
		clock:    clock,
		log:      log,
		notifier: notifier,
		defaults: settings.Params,
		jitter: func() float64 {
			return lo + rand.Float64()*(hi-lo) //nolint:gosec // timing jitter, not security sensitive
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve returns Proceed when no cooldown is active and the jittered minimum
// spacing since the last dispatch has elapsed. On Proceed the dispatch instant
// is already recorded.
func (l *Limiter) Reserve(ctx context.Context) (Outcome, error) {
	params, err := l.Parameters(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var wait time.Time
	_, written, err := l.update(ctx, func(now time.Time, s *domain.RateLimitState) bool {
		if at := nextAllowed(*s, params); now.Before(at) {
			wait = at
			return false
		}
		s.LastDispatchAt = now
		s.SpacingJitter = l.jitter()
		return true
	})
	if err != nil {
		return Outcome{}, err
	}
	if !written {
		return Outcome{WaitUntil: wait}, nil
	}
	return Outcome{Proceed: true}, nil
}

// ReportAbuseSignal starts a cooldown for a rate-limit-class failure and
// returns when it ends. The cooldown never moves backwards. Kinds outside the
// rate-limit class leave the state untouched.
func (l *Limiter) ReportAbuseSignal(ctx context.Context, kind domain.ErrorKind) (time.Time, error) {
	params, err := l.Parameters(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var pause time.Duration
	switch kind {
	case domain.KindRateLimited:
		pause = params.AbusePause
	case domain.KindChallengeTimeout, domain.KindChallengePage:
		pause = params.ChallengePause
	default:
		return time.Time{}, nil
	}

	state, written, err := l.update(ctx, func(now time.Time, s *domain.RateLimitState) bool {
		until := now.Add(pause)
		if !until.After(s.CooldownUntil) {
			return false
		}
		s.CooldownUntil = until
		return true
	})
	if err != nil {
		return time.Time{}, err
	}

	if written {
		l.log.Warn("dispatch paused", "kind", kind.String(), "until", state.CooldownUntil)
		l.notifier.CooldownStarted(ctx, kind, state.CooldownUntil)
	}
	return state.CooldownUntil, nil
}

// ForceResume ends any cooldown immediately.
func (l *Limiter) ForceResume(ctx context.Context) error {
	_, _, err := l.update(ctx, func(now time.Time, s *domain.RateLimitState) bool {
		s.CooldownUntil = now
		return true
	})
	if err != nil {
		return err
	}
	l.log.Info("dispatch resumed by operator")
	return nil
}

// Parameters returns the stored parameters over the configured defaults.
func (l *Limiter) Parameters(ctx context.Context) (domain.RateLimitParams, error) {
	defaults := l.Defaults()

	rec, ok, err := l.kv.Get(ctx, domain.RateLimitParamsKey)
	if err != nil {
		return domain.RateLimitParams{}, zerr.Wrap(domain.ErrStoreReadFailed, err.Error())
	}
	if !ok {
		return defaults, nil
	}

	var p domain.RateLimitParams
	if err := json.Unmarshal(rec.Value, &p); err != nil {
		return domain.RateLimitParams{}, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, err.Error()), "key", domain.RateLimitParamsKey)
	}
	return p.Merge(defaults), nil
}

// SetParameters stores operator parameters shared by every process. Zero
// fields fall back to the configured defaults.
func (l *Limiter) SetParameters(ctx context.Context, p domain.RateLimitParams) error {
	if p.MinSpacing < 0 || p.AbusePause < 0 || p.ChallengePause < 0 {
		return zerr.With(zerr.Wrap(domain.ErrInvalidParams, "negative duration"), "params", p)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return zerr.Wrap(err, "failed to encode rate limit parameters")
	}
	if err := l.kv.Put(ctx, domain.RateLimitParamsKey, data); err != nil {
		return zerr.Wrap(domain.ErrStoreWriteFailed, err.Error())
	}

	l.log.Info("rate limit parameters updated",
		"min_spacing", p.MinSpacing, "abuse_pause", p.AbusePause, "challenge_pause", p.ChallengePause)
	return nil
}

// Defaults returns the configured parameters used where none are stored.
func (l *Limiter) Defaults() domain.RateLimitParams {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.defaults
}

// SetDefaults replaces the configured parameters, e.g. after a config reload.
func (l *Limiter) SetDefaults(p domain.RateLimitParams) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaults = p
}

// Status reports the current state and when the next dispatch may start.
func (l *Limiter) Status(ctx context.Context) (Status, error) {
	params, err := l.Parameters(ctx)
	if err != nil {
		return Status{}, err
	}
	state, _, err := l.read(ctx)
	if err != nil {
		return Status{}, err
	}

	now := l.clock.Now()
	st := Status{
		State:          state,
		Params:         params,
		Remaining:      max(state.CooldownUntil.Sub(now), 0),
		NextDispatchAt: nextAllowed(state, params),
	}
	return st, nil
}

// nextAllowed is the earliest instant a dispatch may start.
func nextAllowed(s domain.RateLimitState, p domain.RateLimitParams) time.Time {
	at := s.CooldownUntil
	if !s.LastDispatchAt.IsZero() {
		jitter := s.SpacingJitter
		if jitter <= 0 {
			jitter = 1
		}
		spacing := time.Duration(float64(p.MinSpacing) * jitter)
		if next := s.LastDispatchAt.Add(spacing); next.After(at) {
			at = next
		}
	}
	return at
}

func (l *Limiter) read(ctx context.Context) (domain.RateLimitState, uint64, error) {
	rec, ok, err := l.kv.Get(ctx, domain.RateLimitStateKey)
	if err != nil {
		return domain.RateLimitState{}, 0, zerr.Wrap(domain.ErrStoreReadFailed, err.Error())
	}
	if !ok {
		return domain.RateLimitState{}, 0, nil
	}

	var s domain.RateLimitState
	if err := json.Unmarshal(rec.Value, &s); err != nil {
		return domain.RateLimitState{}, 0, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, err.Error()), "key", domain.RateLimitStateKey)
	}
	return s, rec.Version, nil
}

// update runs mutate against the freshest state and writes the result with a
// compare-and-swap, retrying when another writer got there first. It returns
// the resulting state and whether mutate asked for a write.
func (l *Limiter) update(
	ctx context.Context,
	mutate func(now time.Time, s *domain.RateLimitState) bool,
) (domain.RateLimitState, bool, error) {
	for range maxSwapAttempts {
		state, version, err := l.read(ctx)
		if err != nil {
			return domain.RateLimitState{}, false, err
		}
		if !mutate(l.clock.Now(), &state) {
			return state, false, nil
		}

		data, err := json.Marshal(state)
		if err != nil {
			return domain.RateLimitState{}, false, zerr.Wrap(err, "failed to encode rate limit state")
		}
		_, swapped, err := l.kv.CompareAndSwap(ctx, domain.RateLimitStateKey, version, data)
		if err != nil {
			return domain.RateLimitState{}, false, zerr.Wrap(domain.ErrStoreWriteFailed, err.Error())
		}
		if swapped {
			return state, true, nil
		}
		if err := ctx.Err(); err != nil {
			return domain.RateLimitState{}, false, err
		}
	}
	return domain.RateLimitState{}, false, zerr.With(
		zerr.Wrap(domain.ErrStateContention, "rate limit state"), "attempts", maxSwapAttempts)
}
