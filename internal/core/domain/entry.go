package domain

import (
	"strconv"
	"time"
)

// CacheEntry is the last measurement stored for a CacheKey.
type CacheEntry struct {
	// Count is the number of matching posts seen in the window.
	Count int `json:"count"`
	// Truncated is set when the provider could not enumerate the whole window;
	// Count is then a lower bound.
	Truncated bool `json:"truncated,omitzero"`
	// RecheckAt is the instant after which the entry is stale. Zero means no
	// data-derived schedule; the fixed refresh cooldown applies instead.
	RecheckAt time.Time `json:"recheck_at,omitzero"`
	// FetchedAt is when the measurement was taken.
	FetchedAt time.Time `json:"fetched_at"`
}

// HasRecheck reports whether a data-derived recheck instant is scheduled.
func (e CacheEntry) HasRecheck() bool {
	return !e.RecheckAt.IsZero()
}

// Label renders the count the way badges show it: "12" or "12+" when truncated.
func (e CacheEntry) Label() string {
	if e.Truncated {
		return strconv.Itoa(e.Count) + "+"
	}
	return strconv.Itoa(e.Count)
}

// Measurement is what the provider reports for one subject and window.
type Measurement struct {
	Count      int
	Truncated  bool
	Timestamps []time.Time
}
