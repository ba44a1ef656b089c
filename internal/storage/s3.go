package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

func init() {
	Register("s3", func(ctx context.Context, params Params) (Store, error) {
		return NewS3Store(ctx, params.String("bucket", ""), params.String("prefix", ""), params.String("region", ""))
	})
}

// S3Store implements Store on an S3 bucket. Documents live under
// <prefix>/docs/<key>; <prefix>/recent/ holds one empty marker per
// document whose name sorts newest first.
type S3Store struct {
	bucket string
	prefix string
	client *s3.Client
}

// NewS3Store creates a new S3Store instance
func NewS3Store(ctx context.Context, bucket, prefix, region string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name must not be empty")
	}
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{bucket: bucket, prefix: prefix, client: client}, nil
}

func (s *S3Store) docKey(key string) string {
	return applyPrefix(s.prefix, docsDirName+"/"+key)
}

func (s *S3Store) markerKey(doc *Document) string {
	return applyPrefix(s.prefix, recentPrefix+"/"+invertedRecentMarker(doc.CreatedAt, doc.Key))
}

// Set uses a conditional write (If-None-Match: *) so the object is only
// created when the key is free.
func (s *S3Store) Set(ctx context.Context, doc *Document) error {
	doc.normalize()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.docKey(doc.Key)),
		Body:        bytes.NewReader(doc.Content),
		ContentType: aws.String(doc.MimeType),
		Metadata:    objectMetadata(doc),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isS3Conflict(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to put document: %w", err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(doc)),
		Body:   bytes.NewReader(nil),
	}); err != nil {
		_, _ = s.client.DeleteObject(context.WithoutCancel(ctx), &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.docKey(doc.Key)),
		})
		return fmt.Errorf("failed to index document: %w", err)
	}
	return nil
}

// Get downloads the document object
func (s *S3Store) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.docKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	defer func() {
		_ = obj.Body.Close()
	}()
	content, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}
	doc := documentFromMetadata(key, aws.ToString(obj.ContentType), int64(len(content)), s3Lookup(obj.Metadata))
	doc.Content = content
	return expireOnRead(ctx, s, doc, skipExpire)
}

func (s *S3Store) head(ctx context.Context, key string) (*Document, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.docKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return documentFromMetadata(key, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), s3Lookup(out.Metadata)), nil
}

// Delete removes the document and its marker
func (s *S3Store) Delete(ctx context.Context, key string) error {
	doc, err := s.head(ctx, key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.docKey(key)),
	}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(doc)),
	})
	return nil
}

// ListRecent lists markers in ascending (newest first) order and resolves
// each one with a HEAD request.
func (s *S3Store) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	out := make([]Summary, 0, limit)
	if limit <= 0 {
		return out, nil
	}
	now := time.Now()
	err := s.walkMarkers(ctx, func(key string) (bool, error) {
		doc, err := s.head(ctx, key)
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

// DeleteExpired walks every marker and removes expired documents
func (s *S3Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	var removed int
	err := s.walkMarkers(ctx, func(key string) (bool, error) {
		doc, err := s.head(ctx, key)
		if err != nil || !doc.Expired(before) {
			return true, nil
		}
		if err := s.Delete(ctx, key); err == nil {
			removed++
		}
		return true, nil
	})
	return removed, err
}

// walkMarkers calls fn with the document key of each marker until fn
// returns false or an error.
func (s *S3Store) walkMarkers(ctx context.Context, fn func(key string) (bool, error)) error {
	markerPrefix := applyPrefix(s.prefix, recentPrefix+"/")
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(markerPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list recent index: %w", err)
		}
		for _, obj := range page.Contents {
			_, key, ok := parseRecentMarker(strings.TrimPrefix(aws.ToString(obj.Key), markerPrefix))
			if !ok {
				continue
			}
			more, err := fn(key)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

// Close is a no-op for S3
func (s *S3Store) Close() error {
	return nil
}

func s3Lookup(meta map[string]string) func(string) string {
	return func(name string) string {
		if v, ok := meta[name]; ok {
			return v
		}
		// some S3-compatible services canonicalize metadata names
		for k, v := range meta {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	// Also check for HTTP status code 404 in the error message as fallback
	return strings.Contains(err.Error(), "StatusCode: 404")
}

func isS3Conflict(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
