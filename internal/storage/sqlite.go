package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

func init() {
	Register("sqlite", func(ctx context.Context, params Params) (Store, error) {
		return OpenSQLiteStore(ctx, params.String("path", "./haste.sqlite"))
	})
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    key TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    syntax TEXT NOT NULL DEFAULT '',
    mimetype TEXT NOT NULL,
    size INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    skip_expire INTEGER NOT NULL DEFAULT 0,
    burn_after_read INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);
CREATE INDEX IF NOT EXISTS idx_documents_expires_at ON documents (expires_at);
`

// SQLiteStore implements Store using SQLite. Timestamps are stored as unix
// nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens the database at path and applies the schema
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Set inserts a document; a conflicting key inserts no row
func (s *SQLiteStore) Set(ctx context.Context, doc *Document) error {
	doc.normalize()
	const q = `
INSERT INTO documents (key, content, syntax, mimetype, size, created_at, expires_at, skip_expire, burn_after_read)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING;
`
	res, err := s.db.ExecContext(ctx, q,
		doc.Key,
		doc.Content,
		doc.Syntax,
		doc.MimeType,
		doc.Size,
		doc.CreatedAt.UnixNano(),
		nullableUnix(doc.ExpiresAt),
		doc.SkipExpire,
		doc.BurnAfterRead,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrKeyExists
	}
	return nil
}

// Get fetches a document by key
func (s *SQLiteStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	const q = `
SELECT key, content, syntax, mimetype, created_at, expires_at, skip_expire, burn_after_read
FROM documents WHERE key = ?;
`
	var (
		doc       Document
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(
		&doc.Key, &doc.Content, &doc.Syntax, &doc.MimeType,
		&createdAt, &expiresAt, &doc.SkipExpire, &doc.BurnAfterRead,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	doc.Size = int64(len(doc.Content))
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		doc.ExpiresAt = &t
	}
	return expireOnRead(ctx, s, &doc, skipExpire)
}

// Delete removes a document by key
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?;`, key)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent reads the newest live documents through the created_at index
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	const q = `
SELECT key, size, created_at FROM documents
WHERE skip_expire = 1 OR expires_at IS NULL OR expires_at > ?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, time.Now().UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var (
			sum       Summary
			createdAt int64
		)
		if err := rows.Scan(&sum.Key, &sum.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteExpired removes all expired documents
func (s *SQLiteStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM documents WHERE skip_expire = 0 AND expires_at IS NOT NULL AND expires_at <= ?;`
	res, err := s.db.ExecContext(ctx, q, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(rows), nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
