package services

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/johnwmail/haste/internal/storage"
)

// detectFormat derives syntax and mimetype from submission hints. Content
// is never inspected.
func detectFormat(syntax, mimeType, filename string) (string, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	if syntax == "" && len(ext) > 1 {
		syntax = ext[1:]
	}

	if mimeType != "" {
		if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
			return syntax, mediaType
		}
	}

	// Try to detect from filename extension
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
				return syntax, mediaType
			}
		}
	}

	return syntax, storage.DefaultMimeType
}

// IsTextContent returns true if the content type is text-based
func IsTextContent(contentType string) bool {
	textTypes := []string{
		"text/",
		"application/json",
		"application/xml",
		"application/javascript",
		"application/x-sh",
		"application/x-yaml",
	}

	contentType = strings.ToLower(contentType)
	for _, textType := range textTypes {
		if strings.HasPrefix(contentType, textType) {
			return true
		}
	}

	return false
}

// NormalizeKey strips an extension suffix from a requested key, so that
// "abc.js" resolves to "abc".
func NormalizeKey(key string) string {
	if i := strings.IndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return key
}
