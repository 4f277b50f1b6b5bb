package kv

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	redisNamespace    = "tally:"
	redisValueField   = "value"
	redisVersionField = "version"
	redisScanCount    = 256
)

// Redis is a StateStore on a Redis server. Each key is a hash holding the value
// and its version; compare-and-swap runs under WATCH/MULTI.
type Redis struct {
	client *redis.Client
}

// ConnectRedis creates a client from a redis:// URL or a host:port address.
func ConnectRedis(ctx context.Context, redisURL string) (*Redis, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, zerr.Wrap(err, "parse redis url")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, zerr.With(zerr.Wrap(err, "ping redis"), "addr", client.Options().Addr)
	}
	return &Redis{client: client}, nil
}

// Get implements ports.StateStore.
func (r *Redis) Get(ctx context.Context, key string) (ports.Record, bool, error) {
	rec, ok, err := readRedisRecord(ctx, r.client, key)
	if err != nil {
		return ports.Record{}, false, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "key", key)
	}
	return rec, ok, nil
}

// CompareAndSwap implements ports.StateStore.
func (r *Redis) CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte) (uint64, bool, error) {
	next := expected + 1
	swapped := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, _, err := readRedisRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec.Version != expected {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, redisNamespace+key, redisValueField, value, redisVersionField, next)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, redisNamespace+key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	if !swapped {
		return 0, false, nil
	}
	return next, true, nil
}

// Put implements ports.StateStore.
func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisNamespace+key, redisValueField, value)
		p.HIncrBy(ctx, redisNamespace+key, redisVersionField, 1)
		return nil
	})
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	return nil
}

// Delete implements ports.StateStore.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = redisNamespace + k
	}
	if err := r.client.Del(ctx, namespaced...).Err(); err != nil {
		return zerr.Wrap(domain.ErrStoreWriteFailed, err.Error())
	}
	return nil
}

// Keys implements ports.StateStore.
func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisNamespace+escapeGlob(prefix)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), redisNamespace))
	}
	if err := iter.Err(); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "prefix", prefix)
	}
	return keys, nil
}

// Close implements ports.StateStore.
func (r *Redis) Close() error {
	return r.client.Close()
}

type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func readRedisRecord(ctx context.Context, c hashReader, key string) (ports.Record, bool, error) {
	fields, err := c.HMGet(ctx, redisNamespace+key, redisValueField, redisVersionField).Result()
	if err != nil {
		return ports.Record{}, false, err
	}
	raw, ok := fields[0].(string)
	if !ok {
		return ports.Record{}, false, nil
	}
	versionStr, _ := fields[1].(string)
	version, err := strconv.ParseUint(versionStr, 10, 64)
	if err != nil {
		return ports.Record{}, false, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, err.Error()), "key", key)
	}
	return ports.Record{Value: []byte(raw), Version: version}, true, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
