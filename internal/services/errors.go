package services

import (
	"errors"

	"github.com/johnwmail/haste/internal/storage"
)

var (
	// ErrNotFound means no live document exists for the key.
	ErrNotFound = storage.ErrNotFound
	// ErrKeyExists signals a key collision. It is recovered by retrying
	// with a new key and never returned from Create.
	ErrKeyExists = storage.ErrKeyExists
	// ErrTooLarge rejects content longer than the configured maximum.
	ErrTooLarge = errors.New("document exceeds maximum length")
	// ErrEmptyContent rejects empty submissions.
	ErrEmptyContent = errors.New("document is empty")
	// ErrKeyGenerationExhausted means no free key was found within the
	// retry budget.
	ErrKeyGenerationExhausted = errors.New("key generation exhausted")
	// ErrFailure wraps backend and transport faults.
	ErrFailure = errors.New("storage failure")
)

// Kind classifies service errors for callers that map them to a response.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindKeyExists
	KindTooLarge
	KindEmpty
	KindExhausted
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindKeyExists:
		return "key_exists"
	case KindTooLarge:
		return "too_large"
	case KindEmpty:
		return "empty"
	case KindExhausted:
		return "key_generation_exhausted"
	default:
		return "failure"
	}
}

// Classify returns the Kind of err. Unknown errors are failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrEmptyContent):
		return KindEmpty
	case errors.Is(err, ErrKeyGenerationExhausted):
		return KindExhausted
	case errors.Is(err, ErrKeyExists):
		return KindKeyExists
	default:
		return KindFailure
	}
}
