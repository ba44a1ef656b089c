package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no live document exists for a key.
	ErrNotFound = errors.New("document not found")

	// ErrKeyExists is returned by Set when the key is already occupied.
	ErrKeyExists = errors.New("key already exists")
)

// DefaultMimeType is used when a document carries no mimetype.
const DefaultMimeType = "text/plain"

// Document represents a stored paste
type Document struct {
	Key           string     `json:"key" bson:"_id"`
	Content       []byte     `json:"-" bson:"content"`
	Syntax        string     `json:"syntax,omitempty" bson:"syntax,omitempty"`
	MimeType      string     `json:"mimetype" bson:"mimetype"`
	Size          int64      `json:"size" bson:"size"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	SkipExpire    bool       `json:"skip_expire,omitempty" bson:"skip_expire,omitempty"`
	BurnAfterRead bool       `json:"burn_after_read,omitempty" bson:"burn_after_read,omitempty"`
}

// Expired reports whether the document is past its expiry at now.
// Documents flagged SkipExpire never expire.
func (d *Document) Expired(now time.Time) bool {
	if d == nil || d.SkipExpire || d.ExpiresAt == nil {
		return false
	}
	return !now.Before(*d.ExpiresAt)
}

// TTL returns the remaining lifetime of the document, or 0 when it has none.
func (d *Document) TTL(now time.Time) time.Duration {
	if d.SkipExpire || d.ExpiresAt == nil {
		return 0
	}
	return d.ExpiresAt.Sub(now)
}

// Summary returns the recent-listing view of the document.
func (d *Document) Summary() Summary {
	return Summary{Key: d.Key, Size: d.Size, CreatedAt: d.CreatedAt}
}

// normalize fixes the derived fields before a write.
func (d *Document) normalize() {
	d.Size = int64(len(d.Content))
	if d.MimeType == "" {
		d.MimeType = DefaultMimeType
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.CreatedAt = d.CreatedAt.UTC()
	if d.ExpiresAt != nil {
		t := d.ExpiresAt.UTC()
		d.ExpiresAt = &t
	}
	if d.SkipExpire {
		d.ExpiresAt = nil
	}
}

// Summary is an entry of the recent-documents listing.
type Summary struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for document storage backends
type Store interface {
	// Set stores a new document. It fails with ErrKeyExists instead of
	// overwriting an occupied key.
	Set(ctx context.Context, doc *Document) error

	// Get retrieves a document. An expired document is deleted and reported
	// as ErrNotFound unless skipExpire is set.
	Get(ctx context.Context, key string, skipExpire bool) (*Document, error)

	// Delete removes a document, returning ErrNotFound when absent.
	Delete(ctx context.Context, key string) error

	// ListRecent returns up to limit summaries, newest first.
	ListRecent(ctx context.Context, limit int) ([]Summary, error)

	// Close releases the backend's resources.
	Close() error
}

// Sweeper is implemented by stores without native expiry that can purge
// expired documents in bulk.
type Sweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// expireOnRead applies the lazy-expiration rule shared by all backends.
// It returns ErrNotFound (after a best-effort delete) for an expired
// document unless skipExpire is set.
func expireOnRead(ctx context.Context, s Store, doc *Document, skipExpire bool) (*Document, error) {
	if skipExpire || !doc.Expired(time.Now()) {
		return doc, nil
	}
	if err := s.Delete(ctx, doc.Key); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return nil, ErrNotFound
}
