package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Factory creates a Store from backend-specific parameters.
type Factory func(ctx context.Context, params Params) (Store, error)

// Params holds backend options from configuration.
type Params map[string]string

// String returns the named option or def when unset.
func (p Params) String(name, def string) string {
	if v, ok := p[name]; ok && v != "" {
		return v
	}
	return def
}

// Int returns the named option parsed as an int.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", name, err)
	}
	return n, nil
}

// Bool returns the named option parsed as a bool.
func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %s: %w", name, err)
	}
	return b, nil
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a storage backend available by name.
// It panics if called twice with the same name or with a nil factory.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("storage: nil factory for " + name)
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("storage: backend %s already registered", name))
	}
	factories[name] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownBackendError records an attempt to open an unregistered backend.
type UnknownBackendError struct {
	Name string
}

func (e UnknownBackendError) Error() string {
	return fmt.Sprintf("unsupported storage type: %s (supported: %s)", e.Name, strings.Join(Backends(), ", "))
}

// Open creates the named storage backend.
func Open(ctx context.Context, name string, params Params) (Store, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, UnknownBackendError{Name: name}
	}
	if params == nil {
		params = Params{}
	}
	store, err := factory(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", name, err)
	}
	return store, nil
}
