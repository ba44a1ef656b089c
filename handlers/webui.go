package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// WebUIHandler serves the web client from a static directory
type WebUIHandler struct {
	dir string
}

// NewWebUIHandler creates a new web UI handler
func NewWebUIHandler(dir string) *WebUIHandler {
	return &WebUIHandler{dir: dir}
}

// Index handles the main page via GET /
func (h *WebUIHandler) Index(c *gin.Context) {
	h.serveIndex(c)
}

// Fallback serves files from the static directory. Any other single
// segment GET path, such as /abc123, gets index.html so the client can
// load the document named by the URL.
func (h *WebUIHandler) Fallback(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"message": "Resource not found"})
		return
	}

	clean := path.Clean("/" + c.Request.URL.Path)
	if file := filepath.Join(h.dir, filepath.FromSlash(clean)); clean != "/" && isFile(file) {
		c.File(file)
		return
	}
	if strings.Count(clean, "/") == 1 {
		h.serveIndex(c)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Resource not found"})
}

func (h *WebUIHandler) serveIndex(c *gin.Context) {
	index := filepath.Join(h.dir, "index.html")
	if !isFile(index) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Web client not installed"})
		return
	}
	c.File(index)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// BaseURL returns the configured base URL, or one derived from the
// request when none is configured. The result has no trailing slash.
func BaseURL(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	scheme := "http"
	if isHTTPS(c) {
		scheme = "https"
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

// isHTTPS detects if the original request was HTTPS, even behind proxies
func isHTTPS(c *gin.Context) bool {
	// Direct TLS connection
	if c.Request.TLS != nil {
		return true
	}

	// Check common proxy headers for original protocol
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
		return true
	}
	if proto := c.GetHeader("CloudFront-Forwarded-Proto"); proto == "https" {
		return true
	}
	if scheme := c.GetHeader("X-Forwarded-Scheme"); scheme == "https" {
		return true
	}
	return c.GetHeader("X-Forwarded-Ssl") == "on"
}
