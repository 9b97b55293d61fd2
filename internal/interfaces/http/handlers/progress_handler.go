package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/SynthonScout/internal/application/screening"
)

// ProgressSource reports the live counters of a screening run.
type ProgressSource interface {
	Progress() screening.Snapshot
}

// ProgressHandler serves GET /progress.  The source is attached once the
// run starts; until then the endpoint answers 503.
type ProgressHandler struct {
	source atomic.Pointer[ProgressSource]
}

// NewProgressHandler creates a ProgressHandler with no source attached.
func NewProgressHandler() *ProgressHandler {
	return &ProgressHandler{}
}

// Attach sets the run whose progress is served.
func (h *ProgressHandler) Attach(src ProgressSource) {
	h.source.Store(&src)
}

// RegisterRoutes registers the progress route.
func (h *ProgressHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/progress", h.Progress)
}

// Progress writes the current snapshot as JSON.
func (h *ProgressHandler) Progress(c *gin.Context) {
	src := h.source.Load()
	if src == nil || *src == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "idle"})
		return
	}
	c.JSON(http.StatusOK, (*src).Progress())
}
