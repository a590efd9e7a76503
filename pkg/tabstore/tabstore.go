// Package tabstore models storage scoped to one browser tab session: values
// survive a reload of the tab but not a fresh launch of the browser.
package tabstore

import (
	"slices"
	"strings"
	"sync"
)

// Storage is a tab-scoped string key/value store.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Keys() []string
}

// Memory is an in-process Storage.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Keys returns the stored keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ClearPrefixed deletes every key starting with one of prefixes and returns
// the deleted keys.
func ClearPrefixed(s Storage, prefixes ...string) []string {
	var removed []string
	for _, key := range s.Keys() {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(key, p) {
				s.Delete(key)
				removed = append(removed, key)
				break
			}
		}
	}
	return removed
}
