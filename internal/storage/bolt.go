package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

func init() {
	Register("bolt", func(ctx context.Context, params Params) (Store, error) {
		return OpenBoltStore(params.String("path", "./haste.db"))
	})
}

var (
	docBucket    = []byte("documents")
	recentBucket = []byte("recent")
)

// BoltStore implements Store on an embedded BoltDB file. The recent bucket
// is keyed by big-endian creation nanos followed by the document key.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the database at path
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(docBucket); err != nil {
			return fmt.Errorf("create documents bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(recentBucket); err != nil {
			return fmt.Errorf("create recent bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// boltRecord is the stored form; Document hides Content from JSON.
type boltRecord struct {
	Document
	Content []byte `json:"content"`
}

// Set stores a document inside a single write transaction
func (s *BoltStore) Set(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.normalize()
	data, err := json.Marshal(boltRecord{Document: *doc, Content: doc.Content})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		docs, recent := tx.Bucket(docBucket), tx.Bucket(recentBucket)
		if docs.Get([]byte(doc.Key)) != nil {
			return ErrKeyExists
		}
		if err := docs.Put([]byte(doc.Key), data); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		if err := recent.Put(recentKey(doc.CreatedAt, doc.Key), []byte(doc.Key)); err != nil {
			return fmt.Errorf("index document: %w", err)
		}
		return nil
	})
}

// Get retrieves a document by key
func (s *BoltStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *Document
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(docBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		doc, err = decodeBoltRecord(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expireOnRead(ctx, s, doc, skipExpire)
}

// Delete removes a document and its recency entry
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteBolt(tx, key)
	})
}

func deleteBolt(tx *bolt.Tx, key string) error {
	docs, recent := tx.Bucket(docBucket), tx.Bucket(recentBucket)
	raw := docs.Get([]byte(key))
	if raw == nil {
		return ErrNotFound
	}
	if doc, err := decodeBoltRecord(raw); err == nil {
		if err := recent.Delete(recentKey(doc.CreatedAt, doc.Key)); err != nil {
			return fmt.Errorf("delete recent entry: %w", err)
		}
	}
	if err := docs.Delete([]byte(key)); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ListRecent walks the recent bucket backwards
func (s *BoltStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]Summary, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket(docBucket)
		c := tx.Bucket(recentBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			raw := docs.Get(v)
			if raw == nil {
				continue
			}
			doc, err := decodeBoltRecord(raw)
			if err != nil {
				return err
			}
			if doc.Expired(now) {
				continue
			}
			out = append(out, doc.Summary())
		}
		return nil
	})
	return out, err
}

// DeleteExpired removes all documents expired at or before before
func (s *BoltStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		var expired []string
		if err := tx.Bucket(docBucket).ForEach(func(k, v []byte) error {
			doc, err := decodeBoltRecord(v)
			if err != nil {
				return err
			}
			if doc.Expired(before) {
				expired = append(expired, string(k))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range expired {
			if err := deleteBolt(tx, key); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeBoltRecord(raw []byte) (*Document, error) {
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	doc := rec.Document
	doc.Content = rec.Content
	doc.Size = int64(len(doc.Content))
	return &doc, nil
}

func recentKey(t time.Time, key string) []byte {
	k := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	copy(k[8:], key)
	return k
}
