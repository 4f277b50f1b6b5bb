package ports

import (
	"context"
	"time"

	"go.trai.ch/tally/internal/core/domain"
)

// Notifier signals events that need a human's attention.
//
//go:generate mockgen -source=notifier.go -destination=mocks/mock_notifier.go -package=mocks
type Notifier interface {
	// ChallengeDetected is raised once when a verification page needs solving.
	ChallengeDetected(ctx context.Context, subject string, deadline time.Time)
	// ChallengeResolved is raised when the verification page went away.
	ChallengeResolved(ctx context.Context, subject string)
	// CooldownStarted is raised when an abuse signal pauses all dispatch.
	CooldownStarted(ctx context.Context, kind domain.ErrorKind, until time.Time)
}
