package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"doc-intel/internal/services"
)

// SearchHandler handles HTTP requests for search operations
type SearchHandler struct {
	searchService *services.SearchService
	logger        *log.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searchService *services.SearchService, logger *log.Logger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		logger:        logger,
	}
}

// Search runs a query posted as JSON
// @Summary Search documents
// @Description Run a vector, keyword or hybrid search over the caller's indexed chunks
// @Tags search
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param request body services.SearchRequest true "Search request"
// @Success 200 {object} services.SearchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/search [post]
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}

	var req services.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.OwnerID = ownerID

	resp, err := h.searchService.Search(r.Context(), &req)
	if err != nil {
		h.logger.Printf("Search failed: %v", err)
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, resp)
}

// SearchGet runs a query from URL parameters, for quick manual use
// @Summary Search documents via query string
// @Tags search
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param q query string true "Query text"
// @Param mode query string false "vector, keyword or hybrid" default(hybrid)
// @Param max_results query int false "Result cap" default(10)
// @Param document_type query string false "Restrict to documents of this content type"
// @Param similarity_threshold query number false "Vector similarity floor" default(0.7)
// @Success 200 {object} services.SearchResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/search [get]
func (h *SearchHandler) SearchGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	req := services.SearchRequest{
		Query:        query.Get("q"),
		OwnerID:      ownerID,
		Mode:         services.SearchMode(query.Get("mode")),
		DocumentType: query.Get("document_type"),
		UseCache:     true,
	}
	if maxStr := query.Get("max_results"); maxStr != "" {
		if max, err := strconv.Atoi(maxStr); err == nil {
			req.MaxResults = max
		}
	}
	if thresholdStr := query.Get("similarity_threshold"); thresholdStr != "" {
		if threshold, err := strconv.ParseFloat(thresholdStr, 32); err == nil {
			t := float32(threshold)
			req.SimilarityThreshold = &t
		}
	}

	resp, err := h.searchService.Search(r.Context(), &req)
	if err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, resp)
}

// CacheStats returns search cache statistics
// @Summary Search cache statistics
// @Tags search
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/search/cache/stats [get]
func (h *SearchHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.logger, w, http.StatusOK, h.searchService.GetCacheStats())
}

// ClearCache empties the search cache
// @Summary Clear the search cache
// @Tags search
// @Produce json
// @Success 200 {object} SuccessResponse
// @Router /api/v1/search/cache [delete]
func (h *SearchHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.searchService.ClearCache()
	writeJSON(h.logger, w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "search cache cleared",
	})
}
