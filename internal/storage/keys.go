package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// recentMarker names an ascending recency marker: lexical order equals
// creation order.
func recentMarker(created time.Time, key string) string {
	return fmt.Sprintf("%020d_%s", created.UnixNano(), key)
}

// invertedRecentMarker names a descending recency marker so that object
// listings, which are always ascending, return the newest entry first.
func invertedRecentMarker(created time.Time, key string) string {
	return fmt.Sprintf("%020d_%s", uint64(math.MaxInt64-created.UnixNano()), key)
}

// parseRecentMarker splits a marker into its timestamp field and key.
func parseRecentMarker(name string) (int64, string, bool) {
	ts, key, ok := strings.Cut(name, "_")
	if !ok || key == "" || len(ts) != 20 {
		return 0, "", false
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, key, true
}

// applyPrefix joins an object-store prefix and a name with exactly one slash
func applyPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}
