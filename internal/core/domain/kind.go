package domain

import "errors"

// ErrorKind classifies a failed measurement.
type ErrorKind int

const (
	// KindNone means the error is nil.
	KindNone ErrorKind = iota
	// KindRateLimited means the remote signalled abuse.
	KindRateLimited
	// KindChallengePage means an interactive verification page was returned.
	KindChallengePage
	// KindChallengeTimeout means the verification was not solved in time.
	KindChallengeTimeout
	// KindNetwork means a transport failure or attempt timeout.
	KindNetwork
	// KindParse means the response could not be understood.
	KindParse
	// KindOther is any error outside the measurement taxonomy.
	KindOther
)

var kindNames = map[ErrorKind]string{
	KindNone:             "none",
	KindRateLimited:      "rate_limited",
	KindChallengePage:    "challenge_page",
	KindChallengeTimeout: "challenge_timeout",
	KindNetwork:          "network",
	KindParse:            "parse",
	KindOther:            "other",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Recoverable reports whether the kind is absorbed by the queue (cooldown + requeue)
// instead of being surfaced to the caller.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindRateLimited, KindChallengePage, KindChallengeTimeout:
		return true
	default:
		return false
	}
}

// KindOf classifies err against the measurement sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrChallengeTimeout):
		return KindChallengeTimeout
	case errors.Is(err, ErrChallengePage):
		return KindChallengePage
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrParse):
		return KindParse
	default:
		return KindOther
	}
}
