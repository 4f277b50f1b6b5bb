// Package kv provides the StateStore drivers.
package kv

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/tally/internal/core/ports"
)

// Memory is a process-local StateStore.
type Memory struct {
	mu      sync.Mutex
	records map[string]ports.Record
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]ports.Record)}
}

// Get implements ports.StateStore.
func (m *Memory) Get(_ context.Context, key string) (ports.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return ports.Record{}, false, nil
	}
	rec.Value = slices.Clone(rec.Value)
	return rec, true, nil
}

// CompareAndSwap implements ports.StateStore.
func (m *Memory) CompareAndSwap(_ context.Context, key string, expected uint64, value []byte) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[key].Version != expected {
		return 0, false, nil
	}
	next := expected + 1
	m.records[key] = ports.Record{Value: slices.Clone(value), Version: next}
	return next, true, nil
}

// Put implements ports.StateStore.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = ports.Record{Value: slices.Clone(value), Version: m.records[key].Version + 1}
	return nil
}

// Delete implements ports.StateStore.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.records, k)
	}
	return nil
}

// Keys implements ports.StateStore.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close implements ports.StateStore.
func (m *Memory) Close() error {
	return nil
}
