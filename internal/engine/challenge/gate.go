// Package challenge guards measurement attempts that may hit an interactive
// verification page.
package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
)

// Attempt performs one measurement.
type Attempt func(ctx context.Context) (domain.Measurement, error)

// Gate is a single-slot state machine guarding measurement attempts. Attempts
// run freely until one meets a verification page; from then until the
// verification is solved or abandoned, new attempts wait for the slot and the
// challenged attempt is retried in place.
type Gate struct {
	clock    clockwork.Clock
	notifier ports.Notifier
	log      ports.Logger
	slot     chan struct{}

	mu       sync.Mutex
	settings domain.ChallengeSettings
	state    domain.ChallengeState
}

// New creates a Gate.
func New(clock clockwork.Clock, settings domain.ChallengeSettings, notifier ports.Notifier, log ports.Logger) *Gate {
	return &Gate{
		clock:    clock,
		notifier: notifier,
		log:      log,
		slot:     make(chan struct{}, 1),
		settings: settings,
		state:    domain.ChallengeState{Phase: domain.ChallengeInactive},
	}
}

// State returns the current challenge state.
func (g *Gate) State() domain.ChallengeState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// SetSettings replaces the timeouts used by subsequent runs.
func (g *Gate) SetSettings(s domain.ChallengeSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settings = s
}

// Run performs attempt once no verification is outstanding. A challenge page
// claims the gate's single slot and moves it to AwaitingSolve; the attempt is
// then repeated every poll interval until it returns anything other than a
// challenge page, which is handed back as is, or until the solve deadline,
// which fails with ErrChallengeTimeout. An attempt that exceeds the normal
// timeout fails with ErrNetwork.
func (g *Gate) Run(ctx context.Context, subject string, attempt Attempt) (domain.Measurement, error) {
	if err := g.acquire(ctx); err != nil {
		return domain.Measurement{}, err
	}
	g.release()

	settings := g.currentSettings()

	timer := g.clock.NewTimer(settings.AttemptTimeout)
	m, expired, err := g.try(ctx, attempt, timer)
	timer.Stop()
	if expired {
		return domain.Measurement{}, zerr.With(
			zerr.Wrap(domain.ErrNetwork, "attempt timed out"), "timeout", settings.AttemptTimeout)
	}
	if !errors.Is(err, domain.ErrChallengePage) {
		return m, err
	}

	if err := g.acquire(ctx); err != nil {
		return domain.Measurement{}, err
	}
	defer g.release()

	return g.awaitSolve(ctx, subject, attempt, settings)
}

// acquire takes the challenge slot, waiting while another verification is
// outstanding.
func (g *Gate) acquire(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) release() {
	<-g.slot
}

func (g *Gate) awaitSolve(
	ctx context.Context,
	subject string,
	attempt Attempt,
	settings domain.ChallengeSettings,
) (domain.Measurement, error) {
	now := g.clock.Now()
	deadline := now.Add(settings.SolveTimeout)
	g.setState(domain.ChallengeState{
		Phase:    domain.ChallengeAwaitingSolve,
		Subject:  subject,
		Since:    now,
		Deadline: deadline,
	})
	defer g.setState(domain.ChallengeState{Phase: domain.ChallengeInactive})

	g.log.Warn("verification required", "subject", subject, "deadline", deadline)
	g.notifier.ChallengeDetected(ctx, subject, deadline)

	expiry := g.clock.NewTimer(settings.SolveTimeout)
	defer expiry.Stop()

	for {
		poll := g.clock.NewTimer(settings.PollInterval)
		select {
		case <-ctx.Done():
			poll.Stop()
			return domain.Measurement{}, ctx.Err()
		case <-expiry.Chan():
			poll.Stop()
			return domain.Measurement{}, g.timedOut(subject, deadline)
		case <-poll.Chan():
		}

		if !g.clock.Now().Before(deadline) {
			return domain.Measurement{}, g.timedOut(subject, deadline)
		}

		m, expired, err := g.try(ctx, attempt, expiry)
		if expired {
			return domain.Measurement{}, g.timedOut(subject, deadline)
		}
		if errors.Is(err, domain.ErrChallengePage) {
			g.log.Debug("verification still pending", "subject", subject)
			continue
		}

		g.log.Info("verification resolved", "subject", subject)
		g.notifier.ChallengeResolved(ctx, subject)
		return m, err
	}
}

type result struct {
	m   domain.Measurement
	err error
}

// try runs attempt until it returns or timer fires. The attempt's context is
// cancelled when try returns.
func (g *Gate) try(ctx context.Context, attempt Attempt, timer clockwork.Timer) (domain.Measurement, bool, error) {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		m, err := attempt(actx)
		done <- result{m: m, err: err}
	}()

	select {
	case r := <-done:
		return r.m, false, r.err
	case <-timer.Chan():
		return domain.Measurement{}, true, nil
	case <-ctx.Done():
		return domain.Measurement{}, false, ctx.Err()
	}
}

func (g *Gate) timedOut(subject string, deadline time.Time) error {
	return zerr.With(zerr.With(zerr.Wrap(domain.ErrChallengeTimeout, "verification not completed"),
		"subject", subject), "deadline", deadline)
}

func (g *Gate) currentSettings() domain.ChallengeSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

func (g *Gate) setState(s domain.ChallengeState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}
