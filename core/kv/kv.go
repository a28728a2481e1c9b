// Package kv defines the persistent key-value store used for user settings
// and the minimal session state that has to survive a restart.
package kv

import (
	"fmt"
	"strings"
	"sync"
)

// Store persists string values grouped by namespace. A missing key is
// reported with ok == false and means "use the default".
type Store interface {
	Get(namespace, key string) (value string, ok bool, err error)
	Set(namespace, key, value string) error
}

// Deleter is implemented by stores able to remove keys.
type Deleter interface {
	Delete(namespace, key string) error
}

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[string]string{}}
}

func (s *MemoryStore) Get(namespace, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[namespace][key]
	return v, ok, nil
}

func (s *MemoryStore) Set(namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = map[string]string{}
		s.data[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (s *MemoryStore) Delete(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[namespace], key)
	return nil
}

// ParseBool decodes the boolean spellings found in stored settings and vehicle
// metrics: yes/no, true/false, on/off and 1/0.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "on", "1":
		return true, nil
	case "no", "n", "false", "off", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// FormatBool encodes b the way the vehicle settings store booleans.
func FormatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
