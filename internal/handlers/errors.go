package handlers

import (
	"errors"
	"net/http"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors to HTTP statuses. The taxonomy is
// deliberately small: every ledger rejection a client can act on gets a
// distinct status, everything else is a 500.
func respondError(c *gin.Context, err error) {
	var dup *services.DuplicateRequestError
	switch {
	case errors.As(err, &dup):
		// A prior request with this key is still in flight or failed.
		c.JSON(http.StatusConflict, gin.H{
			"error":          "A request with this idempotency key is already being processed",
			"idempotencyKey": dup.IdempotencyKey,
		})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, services.ErrTransientStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage temporarily unavailable, retry the request"})
	case errors.Is(err, services.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error: " + err.Error()})
	}
}
