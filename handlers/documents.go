package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/services"
	"github.com/johnwmail/haste/internal/storage"
)

// DocumentHandler maps the document routes onto the document service
type DocumentHandler struct {
	service *services.DocumentService
	config  *config.Config
	logger  *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(service *services.DocumentService, cfg *config.Config, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{
		service: service,
		config:  cfg,
		logger:  logger,
	}
}

// Create handles document creation via POST /documents
func (h *DocumentHandler) Create(c *gin.Context) {
	res, ok := h.create(c, false)
	if !ok {
		return
	}
	body := gin.H{"key": res.Key}
	if res.ExpiresAt != nil {
		body["expires_at"] = res.ExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

// CreatePublic handles authenticated creation via POST /public/documents.
// These uploads may outlive the maximum TTL.
func (h *DocumentHandler) CreatePublic(c *gin.Context) {
	res, ok := h.create(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key": res.Key,
		"url": BaseURL(c, h.config.BaseURL) + "/" + res.Key,
	})
}

func (h *DocumentHandler) create(c *gin.Context, privileged bool) (*services.CreateResult, bool) {
	req, err := h.readCreateRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return nil, false
	}
	req.Privileged = privileged

	res, err := h.service.Create(c.Request.Context(), *req)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return res, true
}

// readCreateRequest extracts the content and its options from the request
func (h *DocumentHandler) readCreateRequest(c *gin.Context) (*services.CreateRequest, error) {
	req := &services.CreateRequest{
		Syntax:   c.GetHeader("X-Syntax"),
		Filename: c.GetHeader("X-Filename"),
	}

	if ttl := c.GetHeader("X-TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid X-TTL %q: use a duration such as 30m or 24h", ttl)
		}
		req.TTL = d
	}

	if burn := c.GetHeader("X-Burn-After-Read"); burn != "" {
		v, err := strconv.ParseBool(burn)
		if err != nil {
			return nil, fmt.Errorf("invalid X-Burn-After-Read %q", burn)
		}
		req.BurnAfterRead = v
	}

	mediaType, _, _ := mime.ParseMediaType(c.ContentType())
	switch mediaType {
	case "multipart/form-data":
		content, filename, err := h.readMultipart(c)
		if err != nil {
			return nil, err
		}
		req.Content = content
		if req.Filename == "" {
			req.Filename = filename
		}
	case "application/x-www-form-urlencoded", "":
		// curl -d sends a form content type for arbitrary text
		content, err := h.readLimited(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read content")
		}
		req.Content = content
	default:
		content, err := h.readLimited(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read content")
		}
		req.Content = content
		req.MimeType = c.ContentType()
	}
	return req, nil
}

// readMultipart reads the "file" part of a form, falling back to a "data"
// text field.
func (h *DocumentHandler) readMultipart(c *gin.Context) ([]byte, string, error) {
	file, header, err := c.Request.FormFile("file")
	if err == nil {
		defer func() { _ = file.Close() }()
		content, err := h.readLimited(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file")
		}
		return content, header.Filename, nil
	}
	if data, ok := c.GetPostForm("data"); ok {
		return []byte(data), "", nil
	}
	return nil, "", fmt.Errorf("no file provided")
}

// readLimited reads at most one byte more than the service accepts, so an
// oversized body is rejected by the service without buffering all of it.
func (h *DocumentHandler) readLimited(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(r, int64(h.service.MaxLength())+1))
}

// Get handles document retrieval via GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	key := services.NormalizeKey(c.Param("id"))
	doc, err := h.service.Read(c.Request.Context(), key, h.config.IsStaticDocument(key))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":      doc.Key,
		"data":     string(doc.Content),
		"size":     doc.Size,
		"mimetype": doc.MimeType,
		"syntax":   doc.Syntax,
	})
}

// Public handles raw retrieval via GET /public/:id. The body is always
// served as plain text.
func (h *DocumentHandler) Public(c *gin.Context) {
	doc, ok := h.readForServe(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", doc.Content)
}

// Raw handles GET /raw/:id with the stored mimetype. Text documents are
// served as text/plain so browsers display rather than render them, and
// types a browser would execute are only offered as downloads.
func (h *DocumentHandler) Raw(c *gin.Context) {
	doc, ok := h.readForServe(c)
	if !ok {
		return
	}

	contentType := doc.MimeType
	switch {
	case services.IsTextContent(contentType):
		contentType = "text/plain; charset=utf-8"
	case isActiveContent(contentType):
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Key))
	}
	c.Data(http.StatusOK, contentType, doc.Content)
}

func (h *DocumentHandler) readForServe(c *gin.Context) (*storage.Document, bool) {
	key := services.NormalizeKey(c.Param("id"))
	doc, err := h.service.Read(c.Request.Context(), key, h.config.IsStaticDocument(key))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	setMetadataHeaders(c, services.MetadataOf(doc))
	c.Header("X-Content-Type-Options", "nosniff")
	return doc, true
}

// isActiveContent reports whether a browser may run scripts from the type
func isActiveContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch {
	case strings.HasSuffix(mediaType, "+xml"),
		strings.Contains(mediaType, "html"),
		strings.Contains(mediaType, "javascript"),
		strings.Contains(mediaType, "ecmascript"),
		mediaType == "application/pdf",
		mediaType == "application/x-shockwave-flash":
		return true
	}
	return false
}

// Delete handles document removal via DELETE /documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	key := services.NormalizeKey(c.Param("id"))
	if err := h.service.Delete(c.Request.Context(), key); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "message": "Document deleted."})
}

// Recent handles GET /recent
func (h *DocumentHandler) Recent(c *gin.Context) {
	docs, err := h.service.ListRecent(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if docs == nil {
		docs = []storage.Summary{}
	}
	c.JSON(http.StatusOK, docs)
}
