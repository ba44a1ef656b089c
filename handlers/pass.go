package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/settings"
)

// PassHandler exposes the upload password used by /public/documents
type PassHandler struct {
	settings *settings.Store
	logger   *slog.Logger
}

// NewPassHandler creates a new password handler
func NewPassHandler(s *settings.Store, logger *slog.Logger) *PassHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PassHandler{settings: s, logger: logger}
}

// Get handles GET /pass
func (h *PassHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"password": h.settings.Password()})
}

// Rotate handles POST /pass
func (h *PassHandler) Rotate(c *gin.Context) {
	pass, err := h.settings.Rotate()
	if err != nil {
		h.logger.Error("failed to rotate upload password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to rotate password."})
		return
	}
	h.logger.Info("upload password rotated")
	c.JSON(http.StatusOK, gin.H{"password": pass})
}
