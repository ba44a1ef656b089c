package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

func init() {
	Register("file", func(ctx context.Context, params Params) (Store, error) {
		return NewFilesystemStore(params.String("path", "./data"))
	})
}

const recentDirName = ".recent"

// FilesystemStore implements Store on a local directory. Each document is
// a content file named by its key plus a <key>.json metadata file; the
// .recent directory holds one empty marker per document named
// <created-unix-nanos>_<key>.
type FilesystemStore struct {
	dataDir string
	mu      sync.RWMutex
}

// NewFilesystemStore creates a filesystem store rooted at dataDir
func NewFilesystemStore(dataDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, recentDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FilesystemStore{dataDir: dataDir}, nil
}

func (f *FilesystemStore) contentPath(key string) string {
	return filepath.Join(f.dataDir, key)
}

func (f *FilesystemStore) metaPath(key string) string {
	return filepath.Join(f.dataDir, key+".json")
}

func (f *FilesystemStore) markerPath(doc *Document) string {
	return filepath.Join(f.dataDir, recentDirName, recentMarker(doc.CreatedAt, doc.Key))
}

// Set writes the content to a temp file and hard-links it into place.
// The link fails when the key exists, which makes the existence check
// atomic across processes sharing the directory.
func (f *FilesystemStore) Set(ctx context.Context, doc *Document) error {
	if err := validFileKey(doc.Key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.normalize()
	metaData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmpName, err := writeTemp(f.dataDir, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	defer func() { _ = os.Remove(tmpName) }()

	if err := os.Link(tmpName, f.contentPath(doc.Key)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to link content: %w", err)
	}

	metaTmp, err := writeTemp(f.dataDir, metaData)
	if err != nil {
		_ = os.Remove(f.contentPath(doc.Key))
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(metaTmp, f.metaPath(doc.Key)); err != nil {
		_ = os.Remove(metaTmp)
		_ = os.Remove(f.contentPath(doc.Key))
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := os.WriteFile(f.markerPath(doc), nil, 0o644); err != nil {
		// a document without its marker would be stored under a key no
		// caller was given
		_ = os.Remove(f.metaPath(doc.Key))
		_ = os.Remove(f.contentPath(doc.Key))
		return fmt.Errorf("failed to index document: %w", err)
	}
	return nil
}

// Get reads the metadata and content of a document
func (f *FilesystemStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	if validFileKey(key) != nil {
		return nil, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	doc, err := f.readMeta(key)
	if err != nil {
		f.mu.RUnlock()
		return nil, err
	}
	content, err := os.ReadFile(f.contentPath(key))
	f.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	doc.Content = content
	doc.Size = int64(len(content))

	return expireOnRead(ctx, f, doc, skipExpire)
}

// readMeta loads the metadata file. A missing file means the document is
// absent or still being written.
func (f *FilesystemStore) readMeta(key string) (*Document, error) {
	metaData, err := os.ReadFile(f.metaPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(metaData, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	doc.Key = key
	return &doc, nil
}

// Delete removes the content, metadata and recency marker of a document
func (f *FilesystemStore) Delete(ctx context.Context, key string) error {
	if validFileKey(key) != nil {
		return ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteLocked(key)
}

func (f *FilesystemStore) deleteLocked(key string) error {
	doc, metaErr := f.readMeta(key)
	if metaErr != nil && !errors.Is(metaErr, ErrNotFound) {
		return metaErr
	}
	_ = os.Remove(f.metaPath(key))
	if doc != nil {
		_ = os.Remove(f.markerPath(doc))
	}
	if err := os.Remove(f.contentPath(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove content: %w", err)
	}
	return nil
}

// ListRecent walks the marker directory from the newest entry
func (f *FilesystemStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(f.dataDir, recentDirName))
	if err != nil {
		return nil, fmt.Errorf("failed to read recent index: %w", err)
	}

	now := time.Now()
	out := make([]Summary, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		_, key, ok := parseRecentMarker(entries[i].Name())
		if !ok {
			continue
		}
		doc, err := f.readMeta(key)
		if err != nil {
			continue
		}
		if doc.Expired(now) {
			continue
		}
		out = append(out, doc.Summary())
	}
	return out, nil
}

// DeleteExpired scans metadata files and removes expired documents
func (f *FilesystemStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dataDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	var removed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		doc, err := f.readMeta(key)
		if err != nil || !doc.Expired(before) {
			continue
		}
		if err := f.deleteLocked(key); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the filesystem store
func (f *FilesystemStore) Close() error {
	return nil
}

func writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// validFileKey rejects keys that could escape the data directory or clash
// with the store's own files.
func validFileKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) || strings.HasSuffix(key, ".json") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
