// Package recheck computes when a cached count is expected to change.
package recheck

import (
	"slices"
	"time"

	"go.trai.ch/tally/internal/core/domain"
)

// Policy holds the horizons used for truncated measurements.
type Policy struct {
	// PerMonth is multiplied by the window length for bounded truncated results.
	PerMonth time.Duration
	// Floor is the minimum horizon for bounded truncated results.
	Floor time.Duration
	// Unbounded is the horizon for truncated results over the whole history.
	Unbounded time.Duration
}

// DefaultPolicy returns the stock horizons: 15 days per month, at least 14 days,
// 30 days for the unbounded window.
func DefaultPolicy() Policy {
	return Policy{
		PerMonth:  15 * 24 * time.Hour,
		Floor:     14 * 24 * time.Hour,
		Unbounded: 30 * 24 * time.Hour,
	}
}

// PolicyFromSettings builds a Policy, keeping defaults for unset durations.
func PolicyFromSettings(s domain.RecheckSettings) Policy {
	p := DefaultPolicy()
	if s.TruncatedPerMonth > 0 {
		p.PerMonth = s.TruncatedPerMonth
	}
	if s.TruncatedFloor > 0 {
		p.Floor = s.TruncatedFloor
	}
	if s.UnboundedTruncated > 0 {
		p.Unbounded = s.UnboundedTruncated
	}
	return p
}

// Input is a measurement result together with the policy it was taken under.
type Input struct {
	Count      int
	Threshold  int
	Months     int
	Truncated  bool
	Timestamps []time.Time
}

// TruncatedHorizon returns how long a truncated result over months stays fresh.
func (p Policy) TruncatedHorizon(months int) time.Duration {
	if months <= 0 {
		return p.Unbounded
	}
	return max(time.Duration(months)*p.PerMonth, p.Floor)
}

// Compute returns the instant at which the in-window count is expected to fall
// to the threshold, never earlier than now. The bool is false when no recheck
// can be scheduled. in.Timestamps is not modified.
func (p Policy) Compute(now time.Time, in Input) (time.Time, bool) {
	if in.Truncated {
		return now.Add(p.TruncatedHorizon(in.Months)), true
	}

	if in.Months <= 0 || in.Count <= in.Threshold || len(in.Timestamps) == 0 {
		return time.Time{}, false
	}

	excess := in.Count - in.Threshold
	if excess > len(in.Timestamps) {
		return time.Time{}, false
	}

	sorted := slices.Clone(in.Timestamps)
	slices.SortStableFunc(sorted, func(a, b time.Time) int {
		return a.Compare(b)
	})

	// The excess-th oldest post is the last one that has to leave the window.
	at := sorted[excess-1].AddDate(0, in.Months, 0)
	if at.Before(now) {
		return now, true
	}
	return at, true
}
