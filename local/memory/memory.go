// Package memory is an in-memory LocalStore for tests and ephemeral
// (no-persistence) configurations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nutrilog/datasync/store"
)

type record struct {
	payload   []byte
	updatedAt time.Time
}

// Store implements store.LocalStore with plain maps. Safe for concurrent
// use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]record
}

var _ store.LocalStore = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]map[string]record)}
}

func (s *Store) Save(_ context.Context, collection, id string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.mu.Lock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]record)
		s.collections[collection] = col
	}
	col[id] = record{payload: cp, updatedAt: time.Now()}
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, collection, id string) ([]byte, bool, error) {
	s.mu.RLock()
	rec, ok := s.collections[collection][id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(rec.payload))
	copy(cp, rec.payload)
	return cp, true, nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	delete(s.collections[collection], id)
	s.mu.Unlock()
	return nil
}

func (s *Store) List(_ context.Context, collection string) ([]store.Record, error) {
	s.mu.RLock()
	col := s.collections[collection]
	out := make([]store.Record, 0, len(col))
	for id, rec := range col {
		cp := make([]byte, len(rec.payload))
		copy(cp, rec.payload)
		out = append(out, store.Record{ID: id, Payload: cp, UpdatedAt: rec.updatedAt})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close(context.Context) error { return nil }
