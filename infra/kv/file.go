// Package kv provides the file-backed settings store used by the service.
package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileStore keeps settings in a YAML document. Dotted keys become nested
// mappings, so "usr" / "charging.target_soc" is stored as
// usr: {charging: {target_soc: "80"}}. Every Set rewrites the file
// atomically.
type FileStore struct {
	path string

	mu sync.RWMutex
	k  *koanf.Koanf
}

// OpenFileStore loads path. A missing file yields an empty store that is
// created on the first Set.
func OpenFileStore(path string) (*FileStore, error) {
	k := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load store %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat store %s: %w", path, err)
	}
	return &FileStore{path: path, k: k}, nil
}

func storeKey(namespace, key string) string {
	return namespace + "." + key
}

// Get returns the value stored under namespace/key.
func (s *FileStore) Get(namespace, key string) (string, bool, error) {
	p := storeKey(namespace, key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.k.Exists(p) {
		return "", false, nil
	}
	if _, nested := s.k.Get(p).(map[string]any); nested {
		return "", false, fmt.Errorf("key %s is a section, not a value", p)
	}
	return s.k.String(p), true, nil
}

// Set stores value and persists the document.
func (s *FileStore) Set(namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.k.Set(storeKey(namespace, key), value); err != nil {
		return fmt.Errorf("set %s: %w", storeKey(namespace, key), err)
	}
	return s.flush()
}

// Delete removes namespace/key and persists the document.
func (s *FileStore) Delete(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.k.Delete(storeKey(namespace, key))
	return s.flush()
}

// flush writes the document to a temporary file and renames it over the
// original. Callers hold s.mu.
func (s *FileStore) flush() error {
	b, err := s.k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
