package repositories

import (
	"context"
	"errors"

	"doc-intel/internal/models"
)

// DocumentRepository defines the interface for the document entity store.
// This abstracts Redis operations for document state and artifacts.
type DocumentRepository interface {
	// Registry operations
	Register(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, documentID string) (*models.Document, error)
	// Save replaces the full document state atomically. The Stage Engine
	// uses it so that state and stage artifacts never diverge.
	Save(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, documentID string) error
	Exists(ctx context.Context, documentID string) (bool, error)

	// Query operations
	List(ctx context.Context) ([]*models.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Document, error)
	ListByStatus(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error)
	CountTotal(ctx context.Context) (int, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// AuditHook is invoked after each committed create/update/delete so the write
// path stays observable without a live database trigger.
type AuditHook func(operation string, entity string, entityID string)

// AnalysisRepository stores the single analysis row per document.
type AnalysisRepository interface {
	// Upsert replaces the analysis for the record's document (not append).
	Upsert(ctx context.Context, analysis *models.Analysis) error
	GetByDocument(ctx context.Context, documentID string) (*models.Analysis, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Ping(ctx context.Context) error
}

// DocumentRepositoryError represents errors from the document repository
type DocumentRepositoryError struct {
	Operation  string
	DocumentID string
	Err        error
	Message    string
}

func (e *DocumentRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.DocumentID != "" {
		prefix += " (doc: " + e.DocumentID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *DocumentRepositoryError) Unwrap() error {
	return e.Err
}

// NewDocumentRepositoryError creates a new document repository error
func NewDocumentRepositoryError(operation string, documentID string, err error, message string) *DocumentRepositoryError {
	return &DocumentRepositoryError{
		Operation:  operation,
		DocumentID: documentID,
		Err:        err,
		Message:    message,
	}
}

// NotFoundError indicates the requested entity does not exist. Callers use it
// to distinguish a missing row from a transport failure, e.g. a late capability
// result arriving after the owning document was deleted.
type NotFoundError struct {
	Entity   string
	EntityID string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found: " + e.EntityID
}

// DocumentNotFoundError indicates the document does not exist
func DocumentNotFoundError(documentID string) error {
	return &NotFoundError{Entity: "document", EntityID: documentID}
}

// AnalysisNotFoundError indicates no analysis row exists for the document
func AnalysisNotFoundError(documentID string) error {
	return &NotFoundError{Entity: "analysis", EntityID: documentID}
}

// DocumentAlreadyExistsError indicates a duplicate registration
func DocumentAlreadyExistsError(documentID string) error {
	return NewDocumentRepositoryError("register", documentID, nil, "document already exists: "+documentID)
}

// IsNotFound reports whether err is a repository not-found error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
