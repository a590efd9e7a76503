package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]Record
	byHash map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]Record),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if rec.ID == "" || rec.TokenHash == "" {
		return ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.byHash[rec.TokenHash]; ok {
		return ErrDuplicate
	}
	s.byID[rec.ID] = rec
	s.byHash[rec.TokenHash] = rec.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) GetByTokenHash(_ context.Context, hash string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return Record{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) Update(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.TokenHash != rec.TokenHash {
		delete(s.byHash, prev.TokenHash)
		s.byHash[rec.TokenHash] = rec.ID
	}
	s.byID[rec.ID] = rec
	return nil
}

func (s *MemoryStore) ListActiveByUser(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.byID {
		if rec.UserID == userID && rec.Active {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
