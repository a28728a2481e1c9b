package factory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/v2"
)

// Spec selects a builder by Type and hands it Conf.
type Spec struct {
	Type string         `json:"type" yaml:"type"`
	Conf map[string]any `json:"conf" yaml:"conf"`
}

// Builder turns raw settings into a T.
type Builder[T any] func(conf map[string]any) (T, error)

// Registry maps type names to builders.
type Registry[T any] struct {
	mu       sync.RWMutex
	builders map[string]Builder[T]
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{builders: map[string]Builder[T]{}}
}

// Register binds name to b. Names are case-insensitive and may be bound once.
func (r *Registry[T]) Register(name string, b Builder[T]) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || b == nil {
		return fmt.Errorf("invalid builder registration %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.builders[key]; dup {
		return fmt.Errorf("%s already registered", key)
	}
	r.builders[key] = b
	return nil
}

// Types lists the registered names in sorted order.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build runs the builder named by spec.Type.
func (r *Registry[T]) Build(spec Spec) (T, error) {
	r.mu.RLock()
	b, ok := r.builders[strings.ToLower(strings.TrimSpace(spec.Type))]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown type %q (have %s)", spec.Type, strings.Join(r.Types(), ", "))
	}
	return b(spec.Conf)
}

// Decode copies conf into out using its json tags. Values are weakly typed,
// so "9100" fills an int field. When out has a Validate method it is run on
// the decoded value.
func Decode(conf map[string]any, out any) error {
	k := koanf.New(".")
	for key, val := range conf {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
	}
	if err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return fmt.Errorf("decode conf: %w", err)
	}
	if v, ok := out.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}
