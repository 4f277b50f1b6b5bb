package kv

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
)

// Driver names accepted in the store settings.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

const sqliteFileName = "tally.db"

// Open returns the StateStore selected by s.
func Open(ctx context.Context, s domain.StoreSettings) (ports.StateStore, error) {
	switch s.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile, "":
		return OpenFile(s.Path)
	case DriverSQLite:
		path := s.Path
		if filepath.Ext(path) == "" {
			if err := os.MkdirAll(path, dirPerm); err != nil {
				return nil, zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "dir", path)
			}
			path = filepath.Join(path, sqliteFileName)
		}
		return OpenSQLite(ctx, path)
	case DriverRedis:
		return ConnectRedis(ctx, s.RedisURL)
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownStoreDriver, "open store"), "driver", s.Driver)
	}
}
