package domain

import "time"

// RateLimitState is the process-wide limiter state shared through the state store.
type RateLimitState struct {
	// CooldownUntil blocks every dispatch before this instant.
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
	// LastDispatchAt is when the last measurement was allowed to start.
	LastDispatchAt time.Time `json:"last_dispatch_at,omitzero"`
	// SpacingJitter is the multiplier drawn at LastDispatchAt for the next spacing.
	SpacingJitter float64 `json:"spacing_jitter,omitzero"`
}

// RateLimitParams are the operator-tunable limiter durations.
type RateLimitParams struct {
	MinSpacing     time.Duration `json:"min_spacing,omitzero"`
	AbusePause     time.Duration `json:"abuse_pause,omitzero"`
	ChallengePause time.Duration `json:"challenge_pause,omitzero"`
}

// Merge returns p with zero fields taken from fallback.
func (p RateLimitParams) Merge(fallback RateLimitParams) RateLimitParams {
	if p.MinSpacing == 0 {
		p.MinSpacing = fallback.MinSpacing
	}
	if p.AbusePause == 0 {
		p.AbusePause = fallback.AbusePause
	}
	if p.ChallengePause == 0 {
		p.ChallengePause = fallback.ChallengePause
	}
	return p
}
