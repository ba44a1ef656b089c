package storage

import (
	"context"
	"sync"
	"time"
)

func init() {
	Register("memory", func(ctx context.Context, params Params) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore implements Store in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	recent []string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

// Set stores a copy of doc unless the key is taken
func (m *MemoryStore) Set(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.normalize()
	cp := *doc
	cp.Content = append([]byte(nil), doc.Content...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.Key]; exists {
		return ErrKeyExists
	}
	m.docs[doc.Key] = &cp
	m.recent = append(m.recent, doc.Key)
	return nil
}

// Get returns a copy of the stored document
func (m *MemoryStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	doc, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return expireOnRead(ctx, m, &cp, skipExpire)
}

// Delete removes a document
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[key]; !ok {
		return ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

// ListRecent walks the insertion log backwards, skipping deleted and
// expired entries.
func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, limit)
	live := m.recent[:0]
	for _, key := range m.recent {
		if _, ok := m.docs[key]; ok {
			live = append(live, key)
		}
	}
	m.recent = live

	// A key deleted and stored again appears twice in the log.
	seen := make(map[string]struct{})
	for i := len(m.recent) - 1; i >= 0 && len(out) < limit; i-- {
		key := m.recent[i]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		doc := m.docs[key]
		if doc.Expired(now) {
			continue
		}
		out = append(out, doc.Summary())
	}
	return out, nil
}

// DeleteExpired removes every document that expired at or before before
func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, doc := range m.docs {
		if doc.Expired(before) {
			delete(m.docs, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
