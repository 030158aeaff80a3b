// Package memory provides an in-memory history.Store for tests and
// single-process deployments. Records are lost when the process restarts.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/history"
)

// Store keeps execution records in insertion order with optional eviction
// of the oldest record.
type Store struct {
	mu      sync.RWMutex
	records *list.List // front = newest
	maxSize int        // 0 = unlimited
	now     func() time.Time
}

var _ history.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit.
func New(maxSize int) *Store {
	return &Store{
		records: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Record appends rec, stamping CreatedAt when it is zero.
func (s *Store) Record(_ context.Context, rec api.ExecutionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && s.records.Len() >= s.maxSize {
		s.evictOldest()
	}
	s.records.PushFront(rec)
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(_ context.Context, limit int) ([]api.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.records.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]api.ExecutionRecord, 0, n)
	for e := s.records.Front(); e != nil && len(out) < n; e = e.Next() {
		out = append(out, e.Value.(api.ExecutionRecord))
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Len()
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest must be called with s.mu held.
func (s *Store) evictOldest() {
	if back := s.records.Back(); back != nil {
		s.records.Remove(back)
	}
}
