package appfwk

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a module instance with the given name.
type Factory func(name string) (Module, error)

var globalRegistry = newRegistry()

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func newRegistry() *registry {
	return &registry{factories: make(map[string]Factory)}
}

// Register adds a module factory under a plugin key. Keys are trimmed and
// lower-cased; empty and duplicate keys are errors.
func Register(key string, f Factory) error {
	return globalRegistry.register(key, f)
}

// MustRegister panics on registration failure. Plugin packages call it from
// init() so the application discovers them by key.
func MustRegister(key string, f Factory) {
	if err := Register(key, f); err != nil {
		panic(err)
	}
}

// Resolve returns the factory registered under key.
func Resolve(key string) (Factory, bool) {
	return globalRegistry.resolve(key)
}

// Keys returns all registered plugin keys, sorted. For diagnostics and
// configuration error messages.
func Keys() []string {
	return globalRegistry.keys()
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(key string, f Factory) error {
	k := normalizeKey(key)
	if k == "" {
		return fmt.Errorf("appfwk: plugin key is required")
	}
	if f == nil {
		return fmt.Errorf("appfwk: nil factory for plugin %q", k)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[k]; exists {
		return fmt.Errorf("appfwk: plugin %q already registered", k)
	}
	r.factories[k] = f
	return nil
}

func (r *registry) resolve(key string) (Factory, bool) {
	k := normalizeKey(key)
	if k == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[k]
	return f, ok
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
