package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/johnwmail/haste/internal/storage"
)

// SeedResult reports the outcome of seeding one static document.
type SeedResult int

const (
	SeedStored SeedResult = iota
	SeedAlreadyPresent
)

func (r SeedResult) String() string {
	if r == SeedAlreadyPresent {
		return "already present"
	}
	return "stored"
}

// SeedStatic stores content under the fixed key name as a document that
// never expires. An occupied key is left untouched.
func (s *DocumentService) SeedStatic(ctx context.Context, name string, content []byte, syntax string) (SeedResult, error) {
	if len(content) == 0 {
		return SeedStored, ErrEmptyContent
	}

	_, err := s.get(ctx, name, true)
	switch {
	case err == nil:
		return SeedAlreadyPresent, nil
	case !errors.Is(err, ErrNotFound):
		return SeedStored, err
	}

	doc := &storage.Document{
		Key:        name,
		Content:    content,
		Syntax:     syntax,
		SkipExpire: true,
	}
	err = s.call(ctx, "set", func(ctx context.Context) error {
		return s.store.Set(ctx, doc)
	})
	switch {
	case err == nil:
		s.metrics.Created()
		return SeedStored, nil
	case errors.Is(err, storage.ErrKeyExists):
		return SeedAlreadyPresent, nil
	default:
		return SeedStored, fmt.Errorf("%w: seed document: %w", ErrFailure, err)
	}
}

// SeedStaticFiles seeds every name -> path entry, taking the syntax from
// the file extension. Failures are logged and joined; the remaining files
// are still seeded.
func (s *DocumentService) SeedStaticFiles(ctx context.Context, documents map[string]string) error {
	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		path := documents[name]
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to load static document", "name", name, "path", path, "error", err)
			errs = append(errs, fmt.Errorf("static document %s: %w", name, err))
			continue
		}
		syntax := strings.TrimPrefix(filepath.Ext(path), ".")
		result, err := s.SeedStatic(ctx, name, content, syntax)
		if err != nil {
			s.logger.Warn("failed to seed static document", "name", name, "path", path, "error", err)
			errs = append(errs, fmt.Errorf("static document %s: %w", name, err))
			continue
		}
		s.logger.Info("static document "+result.String(), "name", name, "path", path)
	}
	return errors.Join(errs...)
}
