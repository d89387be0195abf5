package analysis

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"outlier-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analysis service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/results", h.getResults)
	rg.POST("/analyses/:id/cancel", h.cancelAnalysis)
	rg.GET("/analyses/:id/events", h.streamEvents)
}

func (h *Handler) startAnalysis(c *gin.Context) {
	var cfg Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	job, err := h.Svc.Start(c.Request.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidConfig):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	job, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis job", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, job)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analysis jobs", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"jobs": jobs})
}

func (h *Handler) getResults(c *gin.Context) {
	job, err := h.Svc.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis job not found", nil)
		case errors.Is(err, ErrNotCompleted):
			respond.Error(c, http.StatusConflict, "not_completed", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch results", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"jobId":            job.ID,
		"results":          job.Results,
		"skippedChannels":  job.SkippedChannels,
		"skipReasons":      job.SkipReasonCounts(),
		"degradedChannels": job.DegradedChannels,
		"completedAt":      job.CompletedAt,
	})
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	job, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis job not found", nil)
		case errors.Is(err, ErrTerminal):
			respond.Error(c, http.StatusConflict, "already_finished", "analysis job already in a terminal state", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to cancel analysis job", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, job)
}

// streamEvents serves job progress as server-sent events. For jobs already
// in a terminal state it emits one snapshot event and closes.
func (h *Handler) streamEvents(c *gin.Context) {
	jobID := c.Param("id")
	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis job", nil)
		}
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	snapshot := ProgressEvent{
		JobID:           job.ID,
		Step:            job.CurrentStep,
		Message:         "status: " + job.Status,
		ProgressPercent: job.ProgressPercent,
	}
	writeSSE(c.Writer, snapshot)
	c.Writer.Flush()
	if job.Status != StatusPending && job.Status != StatusProcessing {
		return
	}

	events, cancel := h.Svc.Subscribe(jobID)
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			writeSSE(c.Writer, ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func writeSSE(w io.Writer, ev ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	io.WriteString(w, "event: progress\ndata: ")
	w.Write(payload)
	io.WriteString(w, "\n\n")
}
