package cache

import (
	"encoding/json"
	"time"

	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/zerr"
)

// record is the stored shape of a CacheEntry. A record without a count is
// treated as absent.
type record struct {
	Count     *int      `json:"count"`
	Truncated bool      `json:"truncated,omitzero"`
	RecheckAt time.Time `json:"recheck_at,omitzero"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

func encodeEntry(e domain.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode cache entry")
	}
	return data, nil
}

func decodeEntry(key string, data []byte) (*domain.CacheEntry, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, err.Error()), "key", key)
	}
	if r.Count == nil {
		return nil, nil
	}
	return &domain.CacheEntry{
		Count:     *r.Count,
		Truncated: r.Truncated,
		RecheckAt: r.RecheckAt,
		FetchedAt: r.FetchedAt,
	}, nil
}
