package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func init() {
	Register("minio", func(ctx context.Context, params Params) (Store, error) {
		secure, err := params.Bool("secure", false)
		if err != nil {
			return nil, err
		}
		return NewMinIOStore(ctx, MinIOConfig{
			Endpoint:  params.String("endpoint", "localhost:9000"),
			AccessKey: params.String("access_key", ""),
			SecretKey: params.String("secret_key", ""),
			Bucket:    params.String("bucket", "haste"),
			Prefix:    params.String("prefix", ""),
			UseSSL:    secure,
		})
	})
}

// MinIOConfig holds the connection settings of a MinIO store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinIOStore implements Store on a MinIO (or other S3-compatible) bucket
// with the same object layout as S3Store. The client has no conditional
// put, so the key check is a stat followed by a put, serialized within
// this process.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
	mu     sync.Mutex
}

// NewMinIOStore creates a new MinIO client and ensures the bucket exists.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket must not be empty")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, cfg.Bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return &MinIOStore{client: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *MinIOStore) docKey(key string) string {
	return applyPrefix(m.prefix, docsDirName+"/"+key)
}

func (m *MinIOStore) markerKey(doc *Document) string {
	return applyPrefix(m.prefix, recentPrefix+"/"+invertedRecentMarker(doc.CreatedAt, doc.Key))
}

// Set uploads the document if no object exists under its key
func (m *MinIOStore) Set(ctx context.Context, doc *Document) error {
	doc.normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.stat(ctx, doc.Key); err == nil {
		return ErrKeyExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err := m.client.PutObject(ctx, m.bucket, m.docKey(doc.Key), bytes.NewReader(doc.Content), doc.Size, minio.PutObjectOptions{
		ContentType:  doc.MimeType,
		UserMetadata: objectMetadata(doc),
	})
	if err != nil {
		return fmt.Errorf("minio put: %w", err)
	}
	if _, err := m.client.PutObject(ctx, m.bucket, m.markerKey(doc), bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		_ = m.client.RemoveObject(context.WithoutCancel(ctx), m.bucket, m.docKey(doc.Key), minio.RemoveObjectOptions{})
		return fmt.Errorf("minio index: %w", err)
	}
	return nil
}

// Get downloads a document
func (m *MinIOStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.docKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError(err)
	}
	defer func() { _ = obj.Close() }()

	// perform a stat to ensure object exists
	info, err := obj.Stat()
	if err != nil {
		return nil, minioError(err)
	}
	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("minio read: %w", err)
	}
	doc := documentFromMetadata(key, info.ContentType, int64(len(content)), minioLookup(info))
	doc.Content = content
	return expireOnRead(ctx, m, doc, skipExpire)
}

func (m *MinIOStore) stat(ctx context.Context, key string) (*Document, error) {
	info, err := m.client.StatObject(ctx, m.bucket, m.docKey(key), minio.StatObjectOptions{})
	if err != nil {
		return nil, minioError(err)
	}
	return documentFromMetadata(key, info.ContentType, info.Size, minioLookup(info)), nil
}

// Delete removes the document and its marker
func (m *MinIOStore) Delete(ctx context.Context, key string) error {
	doc, err := m.stat(ctx, key)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, m.docKey(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove: %w", err)
	}
	_ = m.client.RemoveObject(ctx, m.bucket, m.markerKey(doc), minio.RemoveObjectOptions{})
	return nil
}

// ListRecent walks the recent markers newest first
func (m *MinIOStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	out := make([]Summary, 0, limit)
	if limit <= 0 {
		return out, nil
	}
	now := time.Now()
	err := m.walkMarkers(ctx, func(key string) (bool, error) {
		doc, err := m.stat(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if !doc.Expired(now) {
			out = append(out, doc.Summary())
		}
		return len(out) < limit, nil
	})
	return out, err
}

// DeleteExpired removes every expired document
func (m *MinIOStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	var removed int
	err := m.walkMarkers(ctx, func(key string) (bool, error) {
		doc, err := m.stat(ctx, key)
		if err != nil || !doc.Expired(before) {
			return true, nil
		}
		if err := m.Delete(ctx, key); err == nil {
			removed++
		}
		return true, nil
	})
	return removed, err
}

func (m *MinIOStore) walkMarkers(ctx context.Context, fn func(key string) (bool, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	markerPrefix := applyPrefix(m.prefix, recentPrefix+"/")
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: markerPrefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("minio list: %w", obj.Err)
		}
		_, key, ok := parseRecentMarker(strings.TrimPrefix(obj.Key, markerPrefix))
		if !ok {
			continue
		}
		more, err := fn(key)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// Close is a no-op for MinIO
func (m *MinIOStore) Close() error {
	return nil
}

func minioLookup(info minio.ObjectInfo) func(string) string {
	return func(name string) string {
		return info.Metadata.Get("X-Amz-Meta-" + name)
	}
}

func minioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	}
	return err
}
