package storage

import (
	"strconv"
	"time"
)

// Object-store backends keep the document body as the object payload and
// everything else in user metadata.
const (
	metaSyntax   = "syntax"
	metaCreated  = "created"
	metaExpires  = "expires"
	metaSkip     = "skip-expire"
	metaBurn     = "burn-after-read"
	docsDirName  = "docs"
	recentPrefix = "recent"
)

func objectMetadata(doc *Document) map[string]string {
	meta := map[string]string{
		metaCreated: strconv.FormatInt(doc.CreatedAt.UnixNano(), 10),
	}
	if doc.Syntax != "" {
		meta[metaSyntax] = doc.Syntax
	}
	if doc.ExpiresAt != nil {
		meta[metaExpires] = strconv.FormatInt(doc.ExpiresAt.UnixNano(), 10)
	}
	if doc.SkipExpire {
		meta[metaSkip] = "true"
	}
	if doc.BurnAfterRead {
		meta[metaBurn] = "true"
	}
	return meta
}

// documentFromMetadata rebuilds a Document (without content) from object
// metadata. lookup returns the value for a metadata name or "".
func documentFromMetadata(key, contentType string, size int64, lookup func(string) string) *Document {
	doc := &Document{
		Key:      key,
		MimeType: contentType,
		Size:     size,
		Syntax:   lookup(metaSyntax),
	}
	if doc.MimeType == "" {
		doc.MimeType = DefaultMimeType
	}
	if n, err := strconv.ParseInt(lookup(metaCreated), 10, 64); err == nil {
		doc.CreatedAt = time.Unix(0, n).UTC()
	}
	if n, err := strconv.ParseInt(lookup(metaExpires), 10, 64); err == nil {
		t := time.Unix(0, n).UTC()
		doc.ExpiresAt = &t
	}
	doc.SkipExpire, _ = strconv.ParseBool(lookup(metaSkip))
	doc.BurnAfterRead, _ = strconv.ParseBool(lookup(metaBurn))
	return doc
}
