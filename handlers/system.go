package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SystemHandler handles system endpoints
type SystemHandler struct {
	storageType string
	version     string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(storageType, version string) *SystemHandler {
	return &SystemHandler{storageType: storageType, version: version}
}

// Health handles health check via GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "haste",
		"storage": h.storageType,
		"version": h.version,
	})
}
