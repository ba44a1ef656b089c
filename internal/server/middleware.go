package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/settings"
)

// publicUser is the basic-auth user name for authenticated uploads
const publicUser = "haste"

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted so the web client can parse it.
func jsonRecovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic while handling request",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// requestLogger logs HTTP requests
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client", c.ClientIP(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// cors adds CORS headers
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Syntax, X-Filename, X-TTL, X-Burn-After-Read")
		c.Header("Access-Control-Expose-Headers", "X-Mimetype, X-Syntax, X-Expires-At, X-Burn-After-Read")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// basicAuth admits requests authenticated as haste:<current password>
func basicAuth(s *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || user != publicUser ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.Password())) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="haste"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Next()
	}
}
