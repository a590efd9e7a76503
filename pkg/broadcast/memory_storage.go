package broadcast

import (
	"context"
	"sync"
)

// MemoryStorage is an in-process SharedStorage.
type MemoryStorage struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[string]map[chan StorageEvent]struct{}
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:   make(map[string]string),
		watchers: make(map[string]map[chan StorageEvent]struct{}),
	}
}

// Get returns the current value of key.
func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.values[key]
	if existed && old == value {
		return nil
	}
	s.values[key] = value
	s.notifyLocked(StorageEvent{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.values[key]
	if !existed {
		return nil
	}
	delete(s.values, key)
	s.notifyLocked(StorageEvent{Key: key, OldValue: old})
	return nil
}

func (s *MemoryStorage) Watch(ctx context.Context, key string) (<-chan StorageEvent, error) {
	ch := make(chan StorageEvent, 16)

	s.mu.Lock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan StorageEvent]struct{})
	}
	s.watchers[key][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[key], ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *MemoryStorage) notifyLocked(evt StorageEvent) {
	for ch := range s.watchers[evt.Key] {
		select {
		case ch <- evt:
		default:
		}
	}
}
