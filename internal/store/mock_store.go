// ABOUTME: Mock RunStore implementation for testing
// ABOUTME: Allows gateway tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory RunStore implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	runs   []*Run // insertion order
	closed bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// RecordRun stores a copy of run.
func (m *MockStore) RecordRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	r := *run
	m.runs = append(m.runs, &r)
	return nil
}

// GetRun retrieves a run by ID.
func (m *MockStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.ID == id {
			out := *r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// ListRuns returns runs newest first.
func (m *MockStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := clampLimit(filter.Limit)
	var out []*Run
	for _, r := range slices.Backward(m.runs) {
		if filter.RunID != "" && r.RunID != filter.RunID {
			continue
		}
		if filter.Pipeline != "" && r.Pipeline != filter.Pipeline {
			continue
		}
		c := *r
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// PruneRuns removes runs created before the cutoff.
func (m *MockStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.runs[:0]
	var n int64
	for _, r := range m.runs {
		if r.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
	return n, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Len returns the number of stored runs.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

var (
	_ RunStore = (*SQLiteStore)(nil)
	_ RunStore = (*MockStore)(nil)
)
