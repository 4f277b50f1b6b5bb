package ports

import (
	"context"

	"go.trai.ch/tally/internal/core/domain"
)

// MeasurementProvider counts a subject's posts in a channel over a trailing window.
//
//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks
type MeasurementProvider interface {
	// Measure returns the count and timestamps found. Failures wrap one of
	// domain.ErrRateLimited, ErrChallengePage, ErrNetwork or ErrParse.
	Measure(ctx context.Context, subject, channel string, months int) (domain.Measurement, error)
}
