package quota

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"outlier-backend/internal/shared/server/respond"
)

// Handler exposes quota observability endpoints.
type Handler struct {
	Ledger *Ledger
}

// NewHandler constructs a Handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{Ledger: ledger}
}

// RegisterRoutes attaches quota routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/quota", h.getQuota)
}

func (h *Handler) getQuota(c *gin.Context) {
	status, err := h.Ledger.Status(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch quota status", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"used":      status.Used,
		"limit":     status.Limit,
		"remaining": status.Remaining,
		"resetAt":   status.ResetAt,
	})
}
