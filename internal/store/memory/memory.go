// Package memory is an in-memory store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yourorg/payment-lifecycle/internal/payment"
	"github.com/yourorg/payment-lifecycle/internal/store"
)

// Store keeps records in a map. Records are copied in and out so callers
// never share state with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*payment.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*payment.Record)}
}

func (s *Store) Create(_ context.Context, rec *payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return store.ErrExists
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]*payment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*payment.Record
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Save(_ context.Context, rec *payment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != rec.Version {
		return store.ErrConflict
	}
	rec.Version++
	s.records[rec.ID] = rec.Clone()
	return nil
}
