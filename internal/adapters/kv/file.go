package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	fileExt      = ".json"
	dirPerm      = 0o750
	filePerm     = 0o600
	tempFileGlob = ".tmp-*"
)

// fileRecord is the on-disk shape of one key. Values must be JSON documents.
type fileRecord struct {
	Key     string          `json:"key"`
	Version uint64          `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// File is a StateStore that keeps one JSON file per key in a directory.
// Writes are atomic renames; compare-and-swap is serialized within the process.
type File struct {
	mu  sync.Mutex
	dir string
}

// OpenFile creates a File store rooted at dir, creating the directory if needed.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "dir", dir)
	}
	return &File{dir: dir}, nil
}

// Get implements ports.StateStore.
func (f *File) Get(_ context.Context, key string) (ports.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok, err := f.read(key)
	if err != nil || !ok {
		return ports.Record{}, false, err
	}
	return ports.Record{Value: rec.Value, Version: rec.Version}, true, nil
}

// CompareAndSwap implements ports.StateStore.
func (f *File) CompareAndSwap(_ context.Context, key string, expected uint64, value []byte) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, _, err := f.read(key)
	if err != nil {
		return 0, false, err
	}
	if rec.Version != expected {
		return 0, false, nil
	}
	next := expected + 1
	if err := f.write(key, next, value); err != nil {
		return 0, false, err
	}
	return next, true, nil
}

// Put implements ports.StateStore.
func (f *File) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, _, err := f.read(key)
	if err != nil {
		return err
	}
	return f.write(key, rec.Version+1, value)
}

// Delete implements ports.StateStore.
func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs error
	for _, k := range keys {
		if err := os.Remove(f.path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(errs, zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", k))
		}
	}
	return errs
}

// Keys implements ports.StateStore.
func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "dir", f.dir)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		rec, err := f.decode(filepath.Join(f.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(rec.Key, prefix) {
			keys = append(keys, rec.Key)
		}
	}
	return keys, nil
}

// Close implements ports.StateStore.
func (f *File) Close() error {
	return nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%016x%s", xxhash.Sum64String(key), fileExt))
}

// read returns the record for key. A missing file, or a file holding a
// different key under the same digest, reads as absent.
func (f *File) read(key string) (fileRecord, bool, error) {
	rec, err := f.decode(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fileRecord{}, false, nil
	}
	if err != nil {
		return fileRecord{}, false, err
	}
	if rec.Key != key {
		return fileRecord{}, false, nil
	}
	return rec, true, nil
}

func (f *File) decode(path string) (fileRecord, error) {
	//nolint:gosec // path is derived from the store directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileRecord{}, err
		}
		return fileRecord{}, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, err.Error()), "path", path)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, err.Error()), "path", path)
	}
	return rec, nil
}

func (f *File) write(key string, version uint64, value []byte) error {
	if !json.Valid(value) {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, "value is not a JSON document"), "key", key)
	}

	data, err := json.Marshal(fileRecord{Key: key, Version: version, Value: value})
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}

	tmp, err := os.CreateTemp(f.dir, tempFileGlob)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrStoreWriteFailed, err.Error()), "key", key)
	}
	return nil
}
