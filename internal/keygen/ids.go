package keygen

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

// NanoID produces URL-safe nanoid keys.
type NanoID struct {
	length int
}

// NewNanoID returns a nanoid generator with the provided length.
func NewNanoID(length int) *NanoID {
	return &NanoID{length: length}
}

// Generate returns a new identifier not in attempted.
func (g *NanoID) Generate(attempted map[string]struct{}) (string, error) {
	return GeneratorFunc(func() (string, error) {
		return gonanoid.New(g.length)
	}).Generate(attempted)
}

// ULID produces lowercase, time-sortable 26 character keys. The configured
// length does not apply.
type ULID struct{}

// NewULID returns a ULID generator.
func NewULID() ULID {
	return ULID{}
}

// Generate returns a new ULID not in attempted.
func (ULID) Generate(attempted map[string]struct{}) (string, error) {
	return GeneratorFunc(func() (string, error) {
		return strings.ToLower(ulid.Make().String()), nil
	}).Generate(attempted)
}
