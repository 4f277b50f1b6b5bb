package domain

import "time"

// ChallengePhase is the state of the challenge gate.
type ChallengePhase string

const (
	// ChallengeInactive means no verification is outstanding.
	ChallengeInactive ChallengePhase = "inactive"
	// ChallengeAwaitingSolve means a verification page is waiting for a human.
	ChallengeAwaitingSolve ChallengePhase = "awaiting_solve"
)

// ChallengeState is the transient state of the single verification slot.
type ChallengeState struct {
	Phase    ChallengePhase `json:"phase"`
	Subject  string         `json:"subject,omitzero"`
	Since    time.Time      `json:"since,omitzero"`
	Deadline time.Time      `json:"deadline,omitzero"`
}

// Active reports whether a verification is outstanding.
func (s ChallengeState) Active() bool {
	return s.Phase == ChallengeAwaitingSolve
}
