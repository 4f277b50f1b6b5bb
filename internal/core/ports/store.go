package ports

import "context"

// Record is a raw value held by a StateStore together with its version.
// Versions start at 1 and grow on every write; 0 means "no record".
type Record struct {
	Value   []byte
	Version uint64
}

// StateStore is the shared key/value store holding cache entries and limiter state.
// It is the serialization point between processes sharing one store.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type StateStore interface {
	// Get returns the record for key. The bool is false if the key is absent.
	Get(ctx context.Context, key string) (Record, bool, error)

	// CompareAndSwap writes value only if the current version of key equals expected.
	// expected == 0 means the key must be absent. It returns the new version and
	// whether the write happened.
	CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte) (uint64, bool, error)

	// Put writes value unconditionally (last write wins).
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Keys lists every key starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
