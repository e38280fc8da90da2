package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
	"doc-intel/internal/services"
)

// UserIDHeader carries the authenticated caller's identity. Authentication
// itself happens upstream; an empty header is rejected here.
const UserIDHeader = "X-User-ID"

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// SuccessResponse is the standard acknowledgement payload
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(logger *log.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(logger *log.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}

// writeServiceError maps domain errors onto HTTP status codes
func writeServiceError(logger *log.Logger, w http.ResponseWriter, err error) {
	switch {
	case repositories.IsNotFound(err):
		writeError(logger, w, http.StatusNotFound, err.Error())
	case services.IsInvalidQuery(err):
		writeError(logger, w, http.StatusBadRequest, err.Error())
	case services.IsConflict(err):
		writeError(logger, w, http.StatusConflict, err.Error())
	case isValidationError(err):
		writeError(logger, w, http.StatusBadRequest, err.Error())
	default:
		writeError(logger, w, http.StatusInternalServerError, err.Error())
	}
}

func isValidationError(err error) bool {
	var ve *models.ValidationError
	return errors.As(err, &ve)
}

// requireUser extracts the caller identity, rejecting anonymous requests
func requireUser(logger *log.Logger, w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(logger, w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return "", false
	}
	return userID, true
}
