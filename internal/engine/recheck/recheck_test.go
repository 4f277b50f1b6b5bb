package recheck_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/engine/recheck"
)

const day = 24 * time.Hour

var now = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

// spread returns n timestamps, oldest first, starting at now-oldest and stepping
// forward by step.
func spread(n int, oldest, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = now.Add(-oldest + time.Duration(i)*step)
	}
	return out
}

func TestCompute_Truncated(t *testing.T) {
	p := recheck.DefaultPolicy()

	tests := []struct {
		name   string
		months int
		want   time.Time
	}{
		{"SixMonths", 6, now.Add(90 * day)},
		{"OneMonthUsesPerMonth", 1, now.Add(15 * day)},
		{"Unbounded", 0, now.Add(30 * day)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Compute(now, recheck.Input{Count: 50, Threshold: 5, Months: tt.months, Truncated: true})
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompute_TruncatedFloor(t *testing.T) {
	p := recheck.Policy{PerMonth: 3 * day, Floor: 14 * day, Unbounded: 30 * day}

	got, ok := p.Compute(now, recheck.Input{Count: 1, Months: 2, Truncated: true})
	require.True(t, ok)
	assert.Equal(t, now.Add(14*day), got)
}

func TestCompute_NoRecheck(t *testing.T) {
	p := recheck.DefaultPolicy()
	ts := spread(12, 80*day, day)

	tests := []struct {
		name string
		in   recheck.Input
	}{
		{"Unbounded", recheck.Input{Count: 12, Threshold: 5, Months: 0, Timestamps: ts}},
		{"AtThreshold", recheck.Input{Count: 5, Threshold: 5, Months: 3, Timestamps: ts[:5]}},
		{"BelowThreshold", recheck.Input{Count: 2, Threshold: 5, Months: 3, Timestamps: ts[:2]}},
		{"NoTimestamps", recheck.Input{Count: 12, Threshold: 5, Months: 3}},
		{"ExcessBeyondData", recheck.Input{Count: 12, Threshold: 5, Months: 3, Timestamps: ts[:6]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Compute(now, tt.in)
			assert.False(t, ok)
			assert.True(t, got.IsZero())
		})
	}
}

func TestCompute_ExcessAgesOut(t *testing.T) {
	p := recheck.DefaultPolicy()

	// Twelve posts between now-80d and now-10d; the seventh oldest must leave the
	// window before the count drops to five.
	ts := []time.Time{
		now.Add(-80 * day),
		now.Add(-72 * day),
		now.Add(-66 * day),
		now.Add(-60 * day),
		now.Add(-55 * day),
		now.Add(-52 * day),
		now.Add(-50 * day),
		now.Add(-40 * day),
		now.Add(-30 * day),
		now.Add(-20 * day),
		now.Add(-15 * day),
		now.Add(-10 * day),
	}
	shuffled := []time.Time{ts[5], ts[11], ts[0], ts[6], ts[3], ts[9], ts[1], ts[8], ts[2], ts[10], ts[4], ts[7]}
	original := append([]time.Time(nil), shuffled...)

	got, ok := p.Compute(now, recheck.Input{Count: 12, Threshold: 5, Months: 3, Timestamps: shuffled})
	require.True(t, ok)
	assert.Equal(t, ts[6].AddDate(0, 3, 0), got)
	assert.Equal(t, original, shuffled, "input must not be reordered")
}

func TestCompute_CalendarMonths(t *testing.T) {
	p := recheck.DefaultPolicy()
	post := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

	got, ok := p.Compute(post, recheck.Input{Count: 2, Threshold: 1, Months: 1, Timestamps: []time.Time{post, post.Add(day)}})
	require.True(t, ok)
	// January 31st plus one month normalizes past the end of February.
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), got)
}

func TestCompute_Ties(t *testing.T) {
	p := recheck.DefaultPolicy()
	tie := now.Add(-30 * day)
	ts := []time.Time{now.Add(-5 * day), tie, tie, now.Add(-60 * day)}

	got, ok := p.Compute(now, recheck.Input{Count: 4, Threshold: 1, Months: 3, Timestamps: ts})
	require.True(t, ok)
	assert.Equal(t, tie.AddDate(0, 3, 0), got)
}

func TestCompute_Deterministic(t *testing.T) {
	p := recheck.DefaultPolicy()
	in := recheck.Input{Count: 9, Threshold: 3, Months: 6, Timestamps: spread(9, 170*day, 7*day)}

	first, ok := p.Compute(now, in)
	require.True(t, ok)
	for range 5 {
		again, ok := p.Compute(now, in)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestCompute_ThresholdMonotonic(t *testing.T) {
	p := recheck.DefaultPolicy()
	ts := spread(20, 85*day, 4*day)

	var prev time.Time
	for threshold := 1; threshold < 20; threshold++ {
		got, ok := p.Compute(now, recheck.Input{Count: 20, Threshold: threshold, Months: 3, Timestamps: ts})
		require.True(t, ok)
		if threshold > 1 {
			assert.False(t, got.After(prev), "threshold %d moved recheck later", threshold)
		}
		prev = got
	}
}

func TestCompute_NotBeforeNewestExpiringPost(t *testing.T) {
	p := recheck.DefaultPolicy()
	ts := spread(8, 60*day, 5*day)

	got, ok := p.Compute(now, recheck.Input{Count: 8, Threshold: 2, Months: 3, Timestamps: ts})
	require.True(t, ok)
	assert.False(t, got.Before(now), "recheck must not precede the measurement")
}

func TestCompute_ClampsTimestampsOutsideWindow(t *testing.T) {
	p := recheck.DefaultPolicy()
	ts := []time.Time{now.Add(-200 * day), now.Add(-190 * day)}

	got, ok := p.Compute(now, recheck.Input{Count: 2, Threshold: 0, Months: 1, Timestamps: ts})
	require.True(t, ok)
	assert.True(t, got.Equal(now))
}

func TestPolicyFromSettings(t *testing.T) {
	p := recheck.PolicyFromSettings(domain.RecheckSettings{TruncatedFloor: 7 * day})
	assert.Equal(t, 15*day, p.PerMonth)
	assert.Equal(t, 7*day, p.Floor)
	assert.Equal(t, 30*day, p.Unbounded)
	assert.Equal(t, 30*day, p.TruncatedHorizon(0))
}
