package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"doc-intel/internal/handlers"
)

// Handlers groups everything the router needs
type Handlers struct {
	Health    *handlers.HealthHandler
	Documents *handlers.DocumentHandler
	Search    *handlers.SearchHandler
	Events    *handlers.EventsHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Health endpoints
	router.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Health.Readiness).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Document lifecycle
	api.HandleFunc("/documents", h.Documents.Upload).Methods(http.MethodPost)
	api.HandleFunc("/documents", h.Documents.List).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.Documents.Get).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", h.Documents.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/reprocess", h.Documents.Reprocess).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/archive", h.Documents.Archive).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/analysis", h.Documents.GetAnalysis).Methods(http.MethodGet)

	// Search
	api.HandleFunc("/search", h.Search.Search).Methods(http.MethodPost)
	api.HandleFunc("/search", h.Search.SearchGet).Methods(http.MethodGet)
	api.HandleFunc("/search/cache/stats", h.Search.CacheStats).Methods(http.MethodGet)
	api.HandleFunc("/search/cache", h.Search.ClearCache).Methods(http.MethodDelete)

	// Event stream
	api.HandleFunc("/events", h.Events.Stream).Methods(http.MethodGet)

	// Workers
	api.HandleFunc("/workers/stats", h.Health.WorkerStats).Methods(http.MethodGet)
}
