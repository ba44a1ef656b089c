package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func init() {
	Register("redis", func(ctx context.Context, params Params) (Store, error) {
		db, err := params.Int("db", 0)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.Options{
			Addr:     params.String("addr", "localhost:6379"),
			Password: params.String("password", ""),
			DB:       db,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStore(client, params.String("prefix", "haste:")), nil
	})
}

// maxRecentEntries bounds the recent sorted set.
const maxRecentEntries = 1000

// RedisStore implements Store on Redis. Documents are JSON values under
// <prefix>doc:<key> with a native TTL; <prefix>recent is a sorted set of
// keys scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) docKey(key string) string {
	return r.prefix + "doc:" + key
}

func (r *RedisStore) recentKey() string {
	return r.prefix + "recent"
}

type redisRecord struct {
	Document
	Content []byte `json:"content"`
}

// Set stores the document with SET NX so that concurrent writers of the
// same key cannot both succeed.
func (r *RedisStore) Set(ctx context.Context, doc *Document) error {
	doc.normalize()
	data, err := json.Marshal(redisRecord{Document: *doc, Content: doc.Content})
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	var ttl time.Duration
	if doc.ExpiresAt != nil {
		ttl = doc.TTL(time.Now())
		if ttl <= 0 {
			// redis rejects non-positive expirations; keep it briefly
			ttl = time.Millisecond
		}
	}

	ok, err := r.client.SetNX(ctx, r.docKey(doc.Key), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.recentKey(), redis.Z{Score: float64(doc.CreatedAt.UnixNano()), Member: doc.Key})
		pipe.ZRemRangeByRank(ctx, r.recentKey(), 0, -maxRecentEntries-1)
		return nil
	})
	if err != nil {
		_ = r.client.Del(context.WithoutCancel(ctx), r.docKey(doc.Key)).Err()
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

// Get retrieves a document by key
func (r *RedisStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	b, err := r.client.Get(ctx, r.docKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	doc, err := decodeRedisRecord(b)
	if err != nil {
		return nil, err
	}
	return expireOnRead(ctx, r, doc, skipExpire)
}

// Delete removes a document
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.docKey(key)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	_ = r.client.ZRem(ctx, r.recentKey(), key).Err()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent pages through the sorted set newest first, dropping members
// whose documents have already expired.
func (r *RedisStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	out := make([]Summary, 0, limit)
	if limit <= 0 {
		return out, nil
	}
	now := time.Now()
	var start int64
	for len(out) < limit {
		members, err := r.client.ZRevRange(ctx, r.recentKey(), start, start+int64(limit)-1).Result()
		if err != nil {
			return nil, fmt.Errorf("redis recent: %w", err)
		}
		if len(members) == 0 {
			break
		}
		start += int64(len(members))

		keys := make([]string, len(members))
		for i, m := range members {
			keys[i] = r.docKey(m)
		}
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}

		var stale []interface{}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				stale = append(stale, members[i])
				continue
			}
			doc, err := decodeRedisRecord([]byte(s))
			if err != nil || doc.Expired(now) {
				continue
			}
			if len(out) < limit {
				out = append(out, doc.Summary())
			}
		}
		if len(stale) > 0 {
			// removed members shift the following ranks down
			if err := r.client.ZRem(ctx, r.recentKey(), stale...).Err(); err == nil {
				start -= int64(len(stale))
			}
		}
	}
	return out, nil
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeRedisRecord(b []byte) (*Document, error) {
	var rec redisRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	doc := rec.Document
	doc.Content = rec.Content
	doc.Size = int64(len(doc.Content))
	return &doc, nil
}
