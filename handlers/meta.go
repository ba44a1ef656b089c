package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/services"
)

// Head handles metadata lookups via HEAD /documents/:id and /public/:id
func (h *DocumentHandler) Head(c *gin.Context) {
	key := services.NormalizeKey(c.Param("id"))
	meta, err := h.service.ReadMetadata(c.Request.Context(), key, h.config.IsStaticDocument(key))
	if err != nil {
		c.Status(statusFor(err))
		return
	}
	setMetadataHeaders(c, meta)
	c.Header("Content-Length", strconv.FormatInt(meta.Size, 10))
	c.Status(http.StatusOK)
}

// Keys handles batch metadata lookups via GET /keys/:keys, where keys are
// comma separated. Keys that cannot be resolved map to null.
func (h *DocumentHandler) Keys(c *gin.Context) {
	var keys []string
	for _, k := range strings.Split(c.Param("keys"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, services.NormalizeKey(k))
		}
	}
	if len(keys) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No keys given."})
		return
	}

	out := make(map[string]*services.Metadata, len(keys))
	for _, entry := range h.service.ResolveMetadataBatch(c.Request.Context(), keys) {
		if entry.Err != nil && services.Classify(entry.Err) != services.KindNotFound {
			h.logger.Warn("failed to resolve document metadata", "key", entry.Key, "error", entry.Err)
		}
		out[entry.Key] = entry.Metadata
	}
	c.JSON(http.StatusOK, out)
}

func setMetadataHeaders(c *gin.Context, meta *services.Metadata) {
	c.Header("X-Mimetype", meta.MimeType)
	if meta.Syntax != "" {
		c.Header("X-Syntax", meta.Syntax)
	}
	if meta.ExpiresAt != nil {
		c.Header("X-Expires-At", meta.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if meta.BurnAfterRead {
		c.Header("X-Burn-After-Read", "true")
	}
}
