package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/services"
)

var errorMessages = map[services.Kind]string{
	services.KindNotFound:  "Document not found.",
	services.KindKeyExists: "Document key already taken.",
	services.KindTooLarge:  "Document exceeds maximum length.",
	services.KindEmpty:     "Document is empty.",
	services.KindExhausted: "Unable to allocate a document key, try again.",
	services.KindFailure:   "Error handling document.",
}

// statusFor maps a service error onto an HTTP status code
func statusFor(err error) int {
	switch services.Classify(err) {
	case services.KindNone:
		return http.StatusOK
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindKeyExists:
		return http.StatusConflict
	case services.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case services.KindEmpty:
		return http.StatusBadRequest
	case services.KindExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error body for err. Backend failures are
// logged; their details are not exposed to the client.
func (h *DocumentHandler) respondError(c *gin.Context, err error) {
	kind := services.Classify(err)
	if kind == services.KindFailure || kind == services.KindExhausted {
		h.logger.Error("document request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
	}
	c.JSON(statusFor(err), gin.H{"message": errorMessages[kind]})
}
