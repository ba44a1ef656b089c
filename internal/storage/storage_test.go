package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// backendCases returns a fresh instance of every backend that can run
// without external services.
func backendCases(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			s, err := NewFilesystemStore(t.TempDir())
			if err != nil {
				t.Fatalf("failed to create filesystem store: %v", err)
			}
			return s
		},
		"bolt": func(t *testing.T) Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "haste.db"))
			if err != nil {
				t.Fatalf("failed to open bolt store: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "haste.sqlite"))
			if err != nil {
				t.Fatalf("failed to open sqlite store: %v", err)
			}
			return s
		},
		"redis": func(t *testing.T) Store {
			m := miniredis.RunT(t)
			return NewRedisStore(redis.NewClient(&redis.Options{Addr: m.Addr()}), "test:")
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func expiresIn(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := &Document{Key: "abc123", Content: []byte("hello world"), Syntax: "go", ExpiresAt: expiresIn(time.Hour)}
		if err := s.Set(ctx, doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		got, err := s.Get(ctx, "abc123", false)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Content) != "hello world" {
			t.Errorf("content = %q, want %q", got.Content, "hello world")
		}
		if got.Syntax != "go" {
			t.Errorf("syntax = %q, want go", got.Syntax)
		}
		if got.MimeType != DefaultMimeType {
			t.Errorf("mimetype = %q, want %q", got.MimeType, DefaultMimeType)
		}
		if got.Size != int64(len("hello world")) {
			t.Errorf("size = %d, want %d", got.Size, len("hello world"))
		}
		if got.ExpiresAt == nil {
			t.Fatalf("expected expiry to survive the round trip")
		}
	})
}

func TestStoreSetRejectsExistingKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Set(ctx, &Document{Key: "dup", Content: []byte("first")}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		err := s.Set(ctx, &Document{Key: "dup", Content: []byte("second")})
		if !errors.Is(err, ErrKeyExists) {
			t.Fatalf("expected ErrKeyExists, got %v", err)
		}
		got, err := s.Get(ctx, "dup", false)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Content) != "first" {
			t.Errorf("existing document was overwritten: %q", got.Content)
		}
	})
}

func TestStoreConcurrentSetSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Set(ctx, &Document{Key: "race", Content: []byte(fmt.Sprintf("writer %d", i))})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, ErrKeyExists) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one successful writer, got %d", wins)
		}
	})
}

func TestStoreGetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		if _, err := s.Get(context.Background(), "missing", false); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStoreDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Set(ctx, &Document{Key: "gone", Content: []byte("x")}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := s.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "gone", false); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, "gone"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
		}
		// the key is free again
		if err := s.Set(ctx, &Document{Key: "gone", Content: []byte("y")}); err != nil {
			t.Fatalf("Set after delete failed: %v", err)
		}
	})
}

func TestStoreExpiredOnAccess(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := &Document{
			Key:       "stale",
			Content:   []byte("old"),
			CreatedAt: time.Now().Add(-2 * time.Hour),
			ExpiresAt: expiresIn(-time.Hour),
		}
		if err := s.Set(ctx, doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, err := s.Get(ctx, "stale", false); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for expired document, got %v", err)
		}
		if _, err := s.Get(ctx, "stale", true); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected expired document to be removed on access, got %v", err)
		}
	})
}

func TestStoreSkipExpire(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		doc := &Document{Key: "about", Content: []byte("static"), SkipExpire: true, ExpiresAt: expiresIn(-time.Hour)}
		if err := s.Set(ctx, doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := s.Get(ctx, "about", false)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !got.SkipExpire || got.ExpiresAt != nil {
			t.Errorf("expected a non-expiring document, got skip=%v expires=%v", got.SkipExpire, got.ExpiresAt)
		}
	})
}

func TestStoreListRecent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Minute)
		for i, key := range []string{"first", "second", "third", "fourth"} {
			doc := &Document{Key: key, Content: []byte(key), CreatedAt: base.Add(time.Duration(i) * time.Second)}
			if key == "third" {
				doc.ExpiresAt = expiresIn(-time.Second)
			}
			if err := s.Set(ctx, doc); err != nil {
				t.Fatalf("Set %s failed: %v", key, err)
			}
		}

		got, err := s.ListRecent(ctx, 10)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		want := []string{"fourth", "second", "first"}
		if len(got) != len(want) {
			t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
		}
		for i, key := range want {
			if got[i].Key != key {
				t.Errorf("entry %d = %s, want %s", i, got[i].Key, key)
			}
		}

		limited, err := s.ListRecent(ctx, 2)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if len(limited) != 2 || limited[0].Key != "fourth" || limited[1].Key != "second" {
			t.Errorf("unexpected limited listing: %+v", limited)
		}
	})
}

func TestStoreListRecentSkipsDeleted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, key := range []string{"keep", "drop"} {
			if err := s.Set(ctx, &Document{Key: key, Content: []byte(key)}); err != nil {
				t.Fatalf("Set %s failed: %v", key, err)
			}
		}
		if err := s.Delete(ctx, "drop"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, err := s.ListRecent(ctx, 10)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if len(got) != 1 || got[0].Key != "keep" {
			t.Fatalf("unexpected listing: %+v", got)
		}
	})
}

func TestSweeperDeleteExpired(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		sw, ok := s.(Sweeper)
		if !ok {
			t.Skip("backend expires documents natively")
		}
		ctx := context.Background()
		_ = s.Set(ctx, &Document{Key: "old", Content: []byte("x"), ExpiresAt: expiresIn(-time.Minute)})
		_ = s.Set(ctx, &Document{Key: "new", Content: []byte("y"), ExpiresAt: expiresIn(time.Hour)})
		_ = s.Set(ctx, &Document{Key: "forever", Content: []byte("z")})

		n, err := sw.DeleteExpired(ctx, time.Now())
		if err != nil {
			t.Fatalf("DeleteExpired failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("removed %d documents, want 1", n)
		}
		for _, key := range []string{"new", "forever"} {
			if _, err := s.Get(ctx, key, false); err != nil {
				t.Errorf("expected %s to survive, got %v", key, err)
			}
		}
	})
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	s, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create filesystem store: %v", err)
	}
	for _, key := range []string{"", "../etc", ".recent", "a/b", "x.json"} {
		if err := s.Set(context.Background(), &Document{Key: key, Content: []byte("x")}); err == nil {
			t.Errorf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemSetRollsBackWhenIndexFails(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("failed to create filesystem store: %v", err)
	}
	// a regular file in place of the index directory makes marker writes fail
	recent := filepath.Join(dir, recentDirName)
	if err := os.Remove(recent); err != nil {
		t.Fatalf("remove index dir: %v", err)
	}
	if err := os.WriteFile(recent, nil, 0o644); err != nil {
		t.Fatalf("replace index dir: %v", err)
	}

	ctx := context.Background()
	if err := s.Set(ctx, &Document{Key: "orphan", Content: []byte("x")}); err == nil {
		t.Fatal("expected Set to fail when the recent index cannot be written")
	}
	if _, err := s.Get(ctx, "orphan", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, name := range []string{"orphan", "orphan.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s left behind after failed index write", name)
		}
	}
}
