package domain

import "go.trai.ch/zerr"

var (
	// ErrRateLimited is returned when the remote site signals abuse (HTTP 429 or a rate-limit page).
	ErrRateLimited = zerr.New("rate limited by remote")

	// ErrChallengePage is returned when the remote site answers with an interactive verification page.
	ErrChallengePage = zerr.New("challenge page returned")

	// ErrChallengeTimeout is returned when a challenge was not solved before its deadline.
	ErrChallengeTimeout = zerr.New("challenge not solved before deadline")

	// ErrNetwork is returned for transport-level failures, including attempt timeouts.
	ErrNetwork = zerr.New("network failure")

	// ErrParse is returned when the remote response does not have the expected shape.
	ErrParse = zerr.New("unexpected response shape")

	// ErrQueueStopped is returned to callers whose jobs were still pending when the queue stopped.
	ErrQueueStopped = zerr.New("fetch queue stopped")

	// ErrStateContention is returned when a compare-and-set on shared state keeps losing.
	ErrStateContention = zerr.New("shared state contention")

	// ErrInvalidCacheKey is returned when a serialized cache key cannot be parsed.
	ErrInvalidCacheKey = zerr.New("invalid cache key")

	// ErrInvalidParams is returned when rate-limit parameters are out of range.
	ErrInvalidParams = zerr.New("invalid rate limit parameters")

	// ErrAnonymousSubject is returned for subjects that cannot be searched (anonymous nicknames).
	ErrAnonymousSubject = zerr.New("anonymous subject cannot be measured")

	// ErrChannelNotAllowed is returned when a lookup targets a channel outside the allowlist.
	ErrChannelNotAllowed = zerr.New("channel not allowed")

	// ErrEmptySubject is returned when a lookup has no subject or channel.
	ErrEmptySubject = zerr.New("subject and channel are required")

	// ErrStoreReadFailed is returned when the state store cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read state store")

	// ErrStoreWriteFailed is returned when the state store cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write state store")

	// ErrStoreCorrupt is returned when a stored record cannot be decoded.
	ErrStoreCorrupt = zerr.New("corrupt state store record")

	// ErrUnknownStoreDriver is returned when the configured store driver does not exist.
	ErrUnknownStoreDriver = zerr.New("unknown store driver")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")
)
