package models

import (
	"time"
)

// Document represents an uploaded document and its processing state
type Document struct {
	ID          string `json:"document_id"`
	OwnerID     string `json:"owner_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`

	Status       DocumentStatus `json:"status"`
	CurrentStage Stage          `json:"current_stage,omitempty"`
	RetryCount   int            `json:"retry_count"`
	Errors       []StageError   `json:"errors,omitempty"`

	// Artifacts produced by the pipeline
	ExtractedText string `json:"extracted_text,omitempty"`
	ChunkCount    int    `json:"chunk_count"`

	// Denormalized analysis summaries for cheap reads
	EntitySummary     []string `json:"entity_summary,omitempty"`
	ActionItemSummary []string `json:"action_item_summary,omitempty"`
	Sentiment         string   `json:"sentiment,omitempty"`
	KeyPhrases        []string `json:"key_phrases,omitempty"`

	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	LastAccessedAt        *time.Time `json:"last_accessed_at,omitempty"`
}

// DocumentStatus represents the lifecycle status of a document
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusQueued     DocumentStatus = "queued"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
	DocumentStatusArchived   DocumentStatus = "archived"
)

// Stage represents one phase of the processing pipeline
type Stage string

const (
	StageUpload     Stage = "upload"
	StageOCR        Stage = "ocr"
	StageExtraction Stage = "extraction"
	StageAnalysis   Stage = "analysis"
	StageEmbedding  Stage = "embedding"
	StageIndexing   Stage = "indexing"
	StageComplete   Stage = "complete"
)

// StageOrder is the fixed pipeline topology. Stages advance strictly in this
// order; there is no branching and no revisiting after complete.
var StageOrder = []Stage{
	StageUpload,
	StageOCR,
	StageExtraction,
	StageAnalysis,
	StageEmbedding,
	StageIndexing,
	StageComplete,
}

// Next returns the stage following s in the fixed order. The second return
// value is false for complete and for unknown stages.
func (s Stage) Next() (Stage, bool) {
	for i, stage := range StageOrder {
		if stage == s && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return "", false
}

// Index returns the position of s in the stage order, or -1 if unknown.
func (s Stage) Index() int {
	for i, stage := range StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// IsValid checks if the stage is one of the fixed pipeline stages
func (s Stage) IsValid() bool {
	return s.Index() >= 0
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// StageError records a single stage failure on a document
type StageError struct {
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LastError returns the most recent stage error, or nil if none recorded
func (d *Document) LastError() *StageError {
	if len(d.Errors) == 0 {
		return nil
	}
	return &d.Errors[len(d.Errors)-1]
}

// Validate checks if the document is valid
func (d *Document) Validate() error {
	if d.ID == "" {
		return &ValidationError{Field: "document_id", Message: "document ID is required"}
	}
	if d.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "owner ID is required"}
	}
	if d.Filename == "" {
		return &ValidationError{Field: "filename", Message: "filename is required"}
	}
	if !d.Status.IsValid() {
		return &ValidationError{Field: "status", Message: "invalid status: " + string(d.Status)}
	}
	if d.CurrentStage != "" && !d.CurrentStage.IsValid() {
		return &ValidationError{Field: "current_stage", Message: "invalid stage: " + string(d.CurrentStage)}
	}
	if d.RetryCount < 0 {
		return &ValidationError{Field: "retry_count", Message: "retry count cannot be negative"}
	}
	if d.Status == DocumentStatusCompleted && d.CurrentStage != StageComplete {
		return &ValidationError{Field: "status", Message: "completed document must be at stage complete"}
	}
	if d.Status == DocumentStatusFailed && len(d.Errors) == 0 {
		return &ValidationError{Field: "errors", Message: "failed document must record an error"}
	}
	return nil
}

// IsValid checks if document status is valid
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusQueued, DocumentStatusProcessing,
		DocumentStatusCompleted, DocumentStatusFailed, DocumentStatusArchived:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further stage executions are expected
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed || s == DocumentStatusArchived
}

// String returns the string representation of document status
func (s DocumentStatus) String() string {
	return string(s)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// DocumentFilter represents filter criteria for document queries
type DocumentFilter struct {
	OwnerID       string
	Status        DocumentStatus
	ContentType   string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// DocumentDTO - API Request/Response (what clients see)
type DocumentDTO struct {
	ID                    string       `json:"document_id"`
	OwnerID               string       `json:"owner_id"`
	Filename              string       `json:"filename"`
	ContentType           string       `json:"content_type,omitempty"`
	FileSize              int64        `json:"file_size,omitempty"`
	Status                string       `json:"status"`
	CurrentStage          string       `json:"current_stage,omitempty"`
	RetryCount            int          `json:"retry_count"`
	LastError             string       `json:"last_error,omitempty"`
	ChunkCount            int          `json:"chunk_count"`
	EntitySummary         []string     `json:"entity_summary,omitempty"`
	ActionItemSummary     []string     `json:"action_item_summary,omitempty"`
	Sentiment             string       `json:"sentiment,omitempty"`
	KeyPhrases            []string     `json:"key_phrases,omitempty"`
	CreatedAt             string       `json:"created_at"`
	UpdatedAt             string       `json:"updated_at"`
	ProcessingStartedAt   string       `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt string       `json:"processing_completed_at,omitempty"`
}

// ToDTO converts Document domain model to DTO
func (d *Document) ToDTO() DocumentDTO {
	dto := DocumentDTO{
		ID:                d.ID,
		OwnerID:           d.OwnerID,
		Filename:          d.Filename,
		ContentType:       d.ContentType,
		FileSize:          d.FileSize,
		Status:            string(d.Status),
		CurrentStage:      string(d.CurrentStage),
		RetryCount:        d.RetryCount,
		ChunkCount:        d.ChunkCount,
		EntitySummary:     d.EntitySummary,
		ActionItemSummary: d.ActionItemSummary,
		Sentiment:         d.Sentiment,
		KeyPhrases:        d.KeyPhrases,
		CreatedAt:         d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         d.UpdatedAt.Format(time.RFC3339),
	}

	if last := d.LastError(); last != nil {
		dto.LastError = last.Message
	}
	if d.ProcessingStartedAt != nil {
		dto.ProcessingStartedAt = d.ProcessingStartedAt.Format(time.RFC3339)
	}
	if d.ProcessingCompletedAt != nil {
		dto.ProcessingCompletedAt = d.ProcessingCompletedAt.Format(time.RFC3339)
	}

	return dto
}
