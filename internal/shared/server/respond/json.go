// Package respond centralizes the success and error body shapes for the
// analysis API so handlers never build envelopes by hand.
package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes the payload as JSON with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes the payload with a 200 status.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}
