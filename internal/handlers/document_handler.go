package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"doc-intel/internal/models"
	"doc-intel/internal/services"
)

// MaxUploadFormSize bounds the parsed multipart form (64 MB)
const MaxUploadFormSize = 64 << 20

// DocumentHandler handles HTTP requests for document operations
type DocumentHandler struct {
	docService *services.DocumentService
	logger     *log.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docService *services.DocumentService, logger *log.Logger) *DocumentHandler {
	return &DocumentHandler{
		docService: docService,
		logger:     logger,
	}
}

// Upload handles document upload requests
// @Summary Upload a document
// @Description Upload a document and queue it for processing
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param file formData file true "Document file"
// @Success 202 {object} models.DocumentDTO
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/documents [post]
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(MaxUploadFormSize); err != nil {
		h.logger.Printf("Failed to parse form: %v", err)
		writeError(h.logger, w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Failed to read file")
		return
	}

	doc, err := h.docService.Upload(r.Context(), &services.UploadRequest{
		OwnerID:     ownerID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.logger.Printf("Upload failed: %v", err)
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusAccepted, doc.ToDTO())
}

// Get returns one document
// @Summary Get a document
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 200 {object} models.DocumentDTO
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/documents/{id} [get]
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}
	documentID := mux.Vars(r)["id"]

	doc, err := h.docService.Get(r.Context(), ownerID, documentID)
	if err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, doc.ToDTO())
}

// List returns the caller's documents
// @Summary List documents
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param status query string false "Filter by status"
// @Success 200 {array} models.DocumentDTO
// @Router /api/v1/documents [get]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}

	status := models.DocumentStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		writeError(h.logger, w, http.StatusBadRequest, "invalid status filter: "+string(status))
		return
	}

	docs, err := h.docService.List(r.Context(), ownerID, status)
	if err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	dtos := make([]models.DocumentDTO, len(docs))
	for i, doc := range docs {
		dtos[i] = doc.ToDTO()
	}
	writeJSON(h.logger, w, http.StatusOK, dtos)
}

// Delete removes a document and everything derived from it
// @Summary Delete a document
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/documents/{id} [delete]
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}
	documentID := mux.Vars(r)["id"]

	if err := h.docService.Delete(r.Context(), ownerID, documentID); err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "document deleted",
	})
}

// Reprocess sends a terminal document back through the pipeline
// @Summary Reprocess a document
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 202 {object} models.DocumentDTO
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/documents/{id}/reprocess [post]
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}
	documentID := mux.Vars(r)["id"]

	doc, err := h.docService.Reprocess(r.Context(), ownerID, documentID)
	if err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusAccepted, doc.ToDTO())
}

// Archive marks a terminal document archived
// @Summary Archive a document
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 200 {object} models.DocumentDTO
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/documents/{id}/archive [post]
func (h *DocumentHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}
	documentID := mux.Vars(r)["id"]

	doc, err := h.docService.Archive(r.Context(), ownerID, documentID)
	if err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, doc.ToDTO())
}

// GetAnalysis returns the analysis row for a document
// @Summary Get document analysis
// @Tags documents
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 200 {object} models.Analysis
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/documents/{id}/analysis [get]
func (h *DocumentHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(h.logger, w, r)
	if !ok {
		return
	}
	documentID := mux.Vars(r)["id"]

	analysis, err := h.docService.GetAnalysis(r.Context(), ownerID, documentID)
	if err != nil {
		writeServiceError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, analysis)
}
