package appfwk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alessandrothea/daqmod/internal/metrics"
)

var (
	// ErrUnknownCommand is returned when a command is dispatched that no
	// handler was registered for.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrDuplicateCommand is returned when a command name is registered twice.
	ErrDuplicateCommand = errors.New("command already registered")
)

// CommandHandler executes one named command. payload carries the
// framework-provided argument; handlers may ignore it.
type CommandHandler func(ctx context.Context, payload []byte) error

// CommandTable maps command names to handlers for a single module instance.
// Registration happens in module constructors; dispatch afterwards may run
// concurrently with further lookups.
type CommandTable struct {
	module   string
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewCommandTable creates an empty command table for the named module.
func NewCommandTable(module string) *CommandTable {
	return &CommandTable{
		module:   module,
		handlers: make(map[string]CommandHandler),
	}
}

// Register binds a handler to a command name. Names are trimmed and
// lower-cased. Empty names, nil handlers and duplicates are errors.
func (t *CommandTable) Register(name string, h CommandHandler) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("commands: %s: command name is required", t.module)
	}
	if h == nil {
		return fmt.Errorf("commands: %s: nil handler for %q", t.module, key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.handlers[key]; exists {
		return fmt.Errorf("commands: %s: %q: %w", t.module, key, ErrDuplicateCommand)
	}
	t.handlers[key] = h
	return nil
}

// MustRegister panics on registration failure. For use in constructors,
// where a duplicate registration is a programming error.
func (t *CommandTable) MustRegister(name string, h CommandHandler) {
	if err := t.Register(name, h); err != nil {
		panic(err)
	}
}

// Dispatch runs the handler registered for name. Dispatching an unknown
// name returns ErrUnknownCommand wrapped with module and command.
func (t *CommandTable) Dispatch(ctx context.Context, name string, payload []byte) error {
	key := strings.ToLower(strings.TrimSpace(name))

	t.mu.RLock()
	h, ok := t.handlers[key]
	t.mu.RUnlock()

	if !ok {
		return fmt.Errorf("commands: %s: %q: %w", t.module, key, ErrUnknownCommand)
	}

	metrics.CommandsDispatched.WithLabelValues(t.module, key).Inc()
	if err := h(ctx, payload); err != nil {
		metrics.CommandErrors.WithLabelValues(t.module, key).Inc()
		return fmt.Errorf("commands: %s: %q: %w", t.module, key, err)
	}
	return nil
}

// Names returns the registered command names, sorted.
func (t *CommandTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
