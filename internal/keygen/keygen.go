// Package keygen produces candidate document keys. Strategies are
// registered by name and selected from configuration.
package keygen

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrKeyspaceExhausted is returned when a strategy cannot draw a key that
// has not already been attempted.
var ErrKeyspaceExhausted = errors.New("keyspace exhausted")

// DefaultType is the strategy used when none is configured.
const DefaultType = "random"

// MaxLength bounds the configurable key length.
const MaxLength = 64

// maxRedraws bounds how often a strategy redraws a key that is already in
// the attempted set.
const maxRedraws = 32

// Generator produces printable keys.
type Generator interface {
	// Generate returns a key that is not in attempted.
	Generate(attempted map[string]struct{}) (string, error)
}

// GeneratorFunc adapts a draw function to Generator
type GeneratorFunc func() (string, error)

// Generate draws until the result is not in attempted
func (f GeneratorFunc) Generate(attempted map[string]struct{}) (string, error) {
	for i := 0; i < maxRedraws; i++ {
		key, err := f()
		if err != nil {
			return "", err
		}
		if _, seen := attempted[key]; !seen {
			return key, nil
		}
	}
	return "", ErrKeyspaceExhausted
}

var constructors = map[string]func(length int) Generator{
	"random":   func(n int) Generator { return NewRandom(n) },
	"phonetic": func(n int) Generator { return NewPhonetic(n) },
	"nanoid":   func(n int) Generator { return NewNanoID(n) },
	"ulid":     func(int) Generator { return NewULID() },
}

// Types lists the registered strategy names.
func Types() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the named strategy. An empty name selects DefaultType.
func New(name string, length int) (Generator, error) {
	if name == "" {
		name = DefaultType
	}
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown key generator %q (supported: %s)", name, strings.Join(Types(), ", "))
	}
	if length < 1 || length > MaxLength {
		return nil, fmt.Errorf("key length must be between 1 and %d, got %d", MaxLength, length)
	}
	return ctor(length), nil
}
