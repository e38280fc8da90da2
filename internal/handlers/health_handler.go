package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"doc-intel/internal/repositories"
	"doc-intel/internal/workers"
)

// HealthHandler reports service and dependency health
type HealthHandler struct {
	docRepo    repositories.DocumentRepository
	vectorRepo repositories.VectorRepository
	pool       *workers.WorkerPool
	logger     *log.Logger
	startTime  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(docRepo repositories.DocumentRepository, vectorRepo repositories.VectorRepository, pool *workers.WorkerPool, logger *log.Logger) *HealthHandler {
	return &HealthHandler{
		docRepo:    docRepo,
		vectorRepo: vectorRepo,
		pool:       pool,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ReadinessResponse reports each dependency check
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health is the liveness probe
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness pings the backing stores
// @Summary Readiness check
// @Description Pings Redis and the vector store; returns 503 when any dependency is down
// @Tags health
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /health/ready [get]
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK

	if err := h.docRepo.Ping(r.Context()); err != nil {
		checks["redis"] = fmt.Sprintf("unreachable: %v", err)
		status = http.StatusServiceUnavailable
	} else {
		checks["redis"] = "ok"
	}

	if err := h.vectorRepo.Ping(r.Context()); err != nil {
		checks["vector_store"] = fmt.Sprintf("unreachable: %v", err)
		status = http.StatusServiceUnavailable
	} else {
		checks["vector_store"] = "ok"
	}

	resp := ReadinessResponse{Status: "ready", Checks: checks}
	if status != http.StatusOK {
		resp.Status = "degraded"
	}
	writeJSON(h.logger, w, status, resp)
}

// WorkerStats reports per-worker processing counters
// @Summary Worker statistics
// @Tags health
// @Produce json
// @Success 200 {array} workers.WorkerStats
// @Router /api/v1/workers/stats [get]
func (h *HealthHandler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, h.pool.GetAllStats())
}
