package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnwmail/haste/internal/keygen"
	"github.com/johnwmail/haste/internal/metrics"
	"github.com/johnwmail/haste/internal/storage"
)

// Defaults applied to zero Options fields.
const (
	DefaultMaxLength      = 400000
	DefaultMaxKeyAttempts = 10
	DefaultRecentLimit    = 20
	DefaultTimeout        = 10 * time.Second

	batchConcurrency = 8
)

// Options configures a DocumentService
type Options struct {
	MaxLength      int
	MaxKeyAttempts int
	RecentLimit    int
	Timeout        time.Duration
	Expiration     ExpirationPolicy
}

func (o Options) withDefaults() Options {
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.MaxKeyAttempts <= 0 {
		o.MaxKeyAttempts = DefaultMaxKeyAttempts
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// DocumentService handles document business logic on top of a Store
type DocumentService struct {
	store   storage.Store
	keys    keygen.Generator
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDocumentService creates a new document service. logger and m may be nil.
func NewDocumentService(store storage.Store, keys keygen.Generator, opts Options, logger *slog.Logger, m *metrics.Metrics) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		store:   store,
		keys:    keys,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: m,
	}
}

// CreateRequest represents a request to create a document
type CreateRequest struct {
	Content       []byte
	Syntax        string
	MimeType      string
	Filename      string
	TTL           time.Duration
	BurnAfterRead bool
	// Privileged callers may ask for documents that never expire and are
	// not bound by the maximum TTL.
	Privileged bool
}

// CreateResult represents the response from creating a document
type CreateResult struct {
	Key       string
	ExpiresAt *time.Time
}

// Metadata is the content-free view of a document
type Metadata struct {
	Key           string     `json:"key"`
	Size          int64      `json:"size"`
	MimeType      string     `json:"mimetype"`
	Syntax        string     `json:"syntax,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	BurnAfterRead bool       `json:"burn_after_read,omitempty"`
}

// KeyMetadata is one entry of a batch lookup. Exactly one of Metadata and
// Err is set.
type KeyMetadata struct {
	Key      string
	Metadata *Metadata
	Err      error
}

// MetadataOf returns the content-free view of doc
func MetadataOf(doc *storage.Document) *Metadata {
	return &Metadata{
		Key:           doc.Key,
		Size:          doc.Size,
		MimeType:      doc.MimeType,
		Syntax:        doc.Syntax,
		CreatedAt:     doc.CreatedAt,
		ExpiresAt:     doc.ExpiresAt,
		BurnAfterRead: doc.BurnAfterRead,
	}
}

// MaxLength returns the configured content limit in bytes
func (s *DocumentService) MaxLength() int {
	return s.opts.MaxLength
}

// Create validates the content and stores it under a freshly generated
// key, retrying with another key when the backend reports a collision.
func (s *DocumentService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if len(req.Content) == 0 {
		return nil, ErrEmptyContent
	}
	if len(req.Content) > s.opts.MaxLength {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(req.Content), s.opts.MaxLength)
	}

	syntax, mimeType := detectFormat(req.Syntax, req.MimeType, req.Filename)
	now := time.Now()
	expiresAt := s.opts.Expiration.ExpiresAt(now, req.TTL, req.Privileged)

	attempted := make(map[string]struct{}, s.opts.MaxKeyAttempts)
	for attempt := 1; attempt <= s.opts.MaxKeyAttempts; attempt++ {
		key, err := s.keys.Generate(attempted)
		if errors.Is(err, keygen.ErrKeyspaceExhausted) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: generate key: %w", ErrFailure, err)
		}
		attempted[key] = struct{}{}

		doc := &storage.Document{
			Key:           key,
			Content:       req.Content,
			Syntax:        syntax,
			MimeType:      mimeType,
			CreatedAt:     now,
			ExpiresAt:     expiresAt,
			BurnAfterRead: req.BurnAfterRead,
		}
		err = s.call(ctx, "set", func(ctx context.Context) error {
			return s.store.Set(ctx, doc)
		})
		switch {
		case err == nil:
			s.metrics.Created()
			s.logger.Info("document created", "key", key, "size", doc.Size, "attempts", attempt)
			return &CreateResult{Key: key, ExpiresAt: doc.ExpiresAt}, nil
		case errors.Is(err, storage.ErrKeyExists):
			s.metrics.Collision()
			s.logger.Debug("key collision", "key", key, "attempt", attempt)
		default:
			s.logger.Error("failed to store document", "key", key, "error", err)
			return nil, fmt.Errorf("%w: store document: %w", ErrFailure, err)
		}
	}

	s.logger.Warn("key generation exhausted", "attempts", len(attempted))
	return nil, ErrKeyGenerationExhausted
}

// Read returns the document stored under key. A burn-after-read document
// is deleted before it is returned; when another reader consumed it first
// the result is ErrNotFound.
func (s *DocumentService) Read(ctx context.Context, key string, skipExpire bool) (*storage.Document, error) {
	doc, err := s.get(ctx, key, skipExpire)
	if err != nil {
		return nil, err
	}
	if !doc.BurnAfterRead || doc.SkipExpire {
		return doc, nil
	}

	err = s.call(ctx, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})
	switch {
	case err == nil:
		s.metrics.Deleted("burned", 1)
		s.logger.Info("document burned after read", "key", key)
		return doc, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("%w: burn document: %w", ErrFailure, err)
	}
}

// ReadMetadata returns size, mimetype and syntax without the content.
// It never burns a document.
func (s *DocumentService) ReadMetadata(ctx context.Context, key string, skipExpire bool) (*Metadata, error) {
	doc, err := s.get(ctx, key, skipExpire)
	if err != nil {
		return nil, err
	}
	return MetadataOf(doc), nil
}

func (s *DocumentService) get(ctx context.Context, key string, skipExpire bool) (*storage.Document, error) {
	var doc *storage.Document
	err := s.call(ctx, "get", func(ctx context.Context) error {
		var err error
		doc, err = s.store.Get(ctx, key, skipExpire)
		return err
	})
	switch {
	case err == nil:
		s.metrics.Read("hit")
		return doc, nil
	case errors.Is(err, storage.ErrNotFound):
		s.metrics.Read("miss")
		return nil, ErrNotFound
	default:
		s.metrics.Read("error")
		s.logger.Error("failed to retrieve document", "key", key, "error", err)
		return nil, fmt.Errorf("%w: retrieve document: %w", ErrFailure, err)
	}
}

// Delete removes a document. Knowing the key is the only authorization.
func (s *DocumentService) Delete(ctx context.Context, key string) error {
	err := s.call(ctx, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})
	switch {
	case err == nil:
		s.metrics.Deleted("explicit", 1)
		s.logger.Info("document deleted", "key", key)
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: delete document: %w", ErrFailure, err)
	}
}

// ListRecent returns the newest live documents, up to the configured page
// size.
func (s *DocumentService) ListRecent(ctx context.Context) ([]storage.Summary, error) {
	var out []storage.Summary
	err := s.call(ctx, "list_recent", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListRecent(ctx, s.opts.RecentLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list recent: %w", ErrFailure, err)
	}
	return out, nil
}

// ResolveMetadataBatch looks up every key and reports metadata or an error
// per key, in input order. A missing key never fails the batch.
func (s *DocumentService) ResolveMetadataBatch(ctx context.Context, keys []string) []KeyMetadata {
	unique := make(map[string]*KeyMetadata, len(keys))
	var order []string
	for _, key := range keys {
		if _, ok := unique[key]; !ok {
			unique[key] = &KeyMetadata{Key: key}
			order = append(order, key)
		}
	}

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for _, key := range order {
		entry := unique[key]
		g.Go(func() error {
			entry.Metadata, entry.Err = s.ReadMetadata(ctx, entry.Key, false)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]KeyMetadata, len(keys))
	for i, key := range keys {
		out[i] = *unique[key]
	}
	return out
}

// call runs a backend operation under the configured timeout and records
// its latency.
func (s *DocumentService) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	failed := err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrKeyExists)
	s.metrics.ObserveBackend(op, start, failed)
	return err
}
