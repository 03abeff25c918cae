// Package prefs stores small user preferences as opaque key/value pairs.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// CategoriesKey holds the JSON list of selected story categories.
const CategoriesKey = "storyCategories"

// ErrNotFound is returned for a key that was never set.
var ErrNotFound = errors.New("preference not found")

// Store is an opaque key/value store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Close() error
}

// Categories reads the selected categories. A missing or unreadable value is
// an empty selection.
func Categories(s Store) []string {
	raw, err := s.Get(CategoriesKey)
	if err != nil || raw == "" {
		return nil
	}
	var cats []string
	if err := json.Unmarshal([]byte(raw), &cats); err != nil {
		return nil
	}
	return cats
}

// SetCategories stores the selected categories.
func SetCategories(s Store, cats []string) error {
	if cats == nil {
		cats = []string{}
	}
	raw, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	return s.Set(CategoriesKey, string(raw))
}

// Memory keeps preferences for the life of the process.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
