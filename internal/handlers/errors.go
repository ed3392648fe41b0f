package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-orders/internal/orders"
	"github.com/imrishuroy/go-storefront-orders/internal/payments"
)

// maxBodyBytes caps request bodies read before validation.
const maxBodyBytes = 1 << 20

// readBody reads the capped request body. On failure it has already written
// the response.
func readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	raw, err := io.ReadAll(c.Request.Body)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request_too_large", "message": fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)})
		return nil, false
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "message": err.Error()})
		return nil, false
	}
	return raw, true
}

// writeError maps a service error onto the HTTP taxonomy. Signature failures
// carry no detail; unexpected errors are logged and reported generically.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification_failed", "message": payments.ErrSignature.Error()})
	case errors.Is(err, orders.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, orders.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "order not found"})
	case errors.Is(err, orders.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, payments.ErrGateway):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_error", "message": "payment gateway unavailable, please retry", "retryable": true})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "something went wrong"})
	}
}
