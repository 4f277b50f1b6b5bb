package domain

import (
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// CacheKeyPrefix prefixes every serialized cache key in the state store.
const CacheKeyPrefix = "cache:"

// Reserved state store keys shared with the cache entries.
const (
	RateLimitStateKey  = "ratelimit:state"
	RateLimitParamsKey = "ratelimit:params"
)

// CacheKey addresses one cached count: a subject within a channel and a trailing window.
// Months == 0 is the unbounded window.
type CacheKey struct {
	Channel string
	Months  int
	Subject string
}

// NewCacheKey builds a CacheKey, normalizing surrounding whitespace.
func NewCacheKey(channel string, months int, subject string) CacheKey {
	return CacheKey{
		Channel: strings.TrimSpace(channel),
		Months:  max(months, 0),
		Subject: strings.TrimSpace(subject),
	}
}

// Unbounded reports whether the key covers the whole history of the channel.
func (k CacheKey) Unbounded() bool {
	return k.Months == 0
}

// String serializes the key as cache:<channel>:<months>m:<subject>.
func (k CacheKey) String() string {
	var b strings.Builder
	b.Grow(len(CacheKeyPrefix) + len(k.Channel) + len(k.Subject) + 6)
	b.WriteString(CacheKeyPrefix)
	b.WriteString(k.Channel)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Months))
	b.WriteString("m:")
	b.WriteString(k.Subject)
	return b.String()
}

// ParseCacheKey is the inverse of CacheKey.String. Subjects may contain ':'.
func ParseCacheKey(s string) (CacheKey, error) {
	rest, ok := strings.CutPrefix(s, CacheKeyPrefix)
	if !ok {
		return CacheKey{}, zerr.With(zerr.Wrap(ErrInvalidCacheKey, "missing prefix"), "key", s)
	}

	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return CacheKey{}, zerr.With(zerr.Wrap(ErrInvalidCacheKey, "malformed key"), "key", s)
	}

	monthsStr, ok := strings.CutSuffix(parts[1], "m")
	if !ok {
		return CacheKey{}, zerr.With(zerr.Wrap(ErrInvalidCacheKey, "malformed window"), "key", s)
	}
	months, err := strconv.Atoi(monthsStr)
	if err != nil || months < 0 {
		return CacheKey{}, zerr.With(zerr.Wrap(ErrInvalidCacheKey, "malformed window"), "key", s)
	}

	return CacheKey{Channel: parts[0], Months: months, Subject: parts[2]}, nil
}
