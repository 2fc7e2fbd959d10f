// Package health exposes the liveness and readiness probes. Liveness only
// proves the process is up; readiness additionally checks that the App loop
// is consuming and the command queue has headroom.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LoopProbe reports whether the App loop is still consuming commands.
type LoopProbe interface {
	Alive() bool
}

// QueueProbe reports the command queue fill level.
type QueueProbe interface {
	Depth() (queued, capacity int)
}

// Handler manages health check endpoints
type Handler struct {
	loop  LoopProbe
	queue QueueProbe
}

// NewHandler creates a new health check handler probing the given engine.
func NewHandler(loop LoopProbe, queue QueueProbe) *Handler {
	return &Handler{loop: loop, queue: queue}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if the App loop is consuming and the command queue is not
// saturated; 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	loopStatus := h.checkLoop()
	checks["app_loop"] = loopStatus
	if loopStatus != "healthy" {
		allHealthy = false
	}

	queueStatus := h.checkQueue()
	checks["command_queue"] = queueStatus
	if queueStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkLoop verifies the App loop goroutine is still running.
func (h *Handler) checkLoop() string {
	if h.loop == nil || !h.loop.Alive() {
		return "unhealthy"
	}
	return "healthy"
}

// checkQueue verifies the command queue still has headroom. A full queue
// means session workers are blocked on submit.
func (h *Handler) checkQueue() string {
	if h.queue == nil {
		return "unhealthy"
	}
	queued, capacity := h.queue.Depth()
	if capacity > 0 && queued >= capacity {
		return "unhealthy"
	}
	return "healthy"
}
