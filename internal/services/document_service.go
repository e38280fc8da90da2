package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"doc-intel/internal/events"
	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
)

// MaxUploadSize bounds accepted uploads (50 MB)
const MaxUploadSize = 50 * 1024 * 1024

// DocumentService owns the document lifecycle outside the pipeline: upload,
// reads, re-processing and the deletion cascade. Every operation that takes
// an ownerID enforces that the caller owns the document.
type DocumentService struct {
	documentRepo repositories.DocumentRepository
	analysisRepo repositories.AnalysisRepository
	artifacts    repositories.ArtifactStore
	queue        repositories.StageQueue
	engine       *StageEngine
	indexer      *Indexer
	logger       events.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	documentRepo repositories.DocumentRepository,
	analysisRepo repositories.AnalysisRepository,
	artifacts repositories.ArtifactStore,
	queue repositories.StageQueue,
	engine *StageEngine,
	indexer *Indexer,
	logger events.Logger,
) *DocumentService {
	return &DocumentService{
		documentRepo: documentRepo,
		analysisRepo: analysisRepo,
		artifacts:    artifacts,
		queue:        queue,
		engine:       engine,
		indexer:      indexer,
		logger:       logger,
	}
}

// UploadRequest represents a document upload
type UploadRequest struct {
	OwnerID     string
	Filename    string
	ContentType string
	Data        []byte
}

// Upload registers a document, stores its bytes and queues it for processing
func (s *DocumentService) Upload(ctx context.Context, req *UploadRequest) (*models.Document, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:           uuid.New().String(),
		OwnerID:      req.OwnerID,
		Filename:     req.Filename,
		ContentType:  req.ContentType,
		FileSize:     int64(len(req.Data)),
		Status:       models.DocumentStatusUploaded,
		CurrentStage: models.StageUpload,
	}

	if err := s.artifacts.SaveFile(ctx, doc.ID, req.Data); err != nil {
		return nil, err
	}

	if err := s.documentRepo.Register(ctx, doc); err != nil {
		// Orphaned bytes just waste space; clean up on the way out
		_ = s.artifacts.DeleteFile(ctx, doc.ID)
		return nil, err
	}

	if err := s.engine.Enqueue(ctx, doc.ID); err != nil {
		return nil, err
	}

	s.logger.Info("document uploaded",
		"document_id", doc.ID, "owner_id", doc.OwnerID, "filename", doc.Filename, "size", doc.FileSize)
	return doc, nil
}

func (s *DocumentService) validateUpload(req *UploadRequest) error {
	if req.OwnerID == "" {
		return &models.ValidationError{Field: "owner_id", Message: "owner ID is required"}
	}
	if req.Filename == "" {
		return &models.ValidationError{Field: "filename", Message: "filename is required"}
	}
	if len(req.Data) == 0 {
		return &models.ValidationError{Field: "file", Message: "file is empty"}
	}
	if len(req.Data) > MaxUploadSize {
		return &models.ValidationError{Field: "file",
			Message: fmt.Sprintf("file exceeds maximum size of %d bytes", MaxUploadSize)}
	}
	return nil
}

// Get retrieves a document the owner can see and touches its access time
func (s *DocumentService) Get(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	doc, err := s.authorize(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc.LastAccessedAt = &now
	if err := s.documentRepo.Save(ctx, doc); err != nil {
		// Access-time bookkeeping must not fail the read
		s.logger.Warn("failed to record document access", "document_id", documentID, "error", err)
	}

	return doc, nil
}

// List returns the owner's documents, optionally filtered by status
func (s *DocumentService) List(ctx context.Context, ownerID string, status models.DocumentStatus) ([]*models.Document, error) {
	docs, err := s.documentRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return docs, nil
	}

	filtered := make([]*models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Status == status {
			filtered = append(filtered, doc)
		}
	}
	return filtered, nil
}

// GetAnalysis returns the analysis row for a document the owner can see
func (s *DocumentService) GetAnalysis(ctx context.Context, ownerID, documentID string) (*models.Analysis, error) {
	if _, err := s.authorize(ctx, ownerID, documentID); err != nil {
		return nil, err
	}
	return s.analysisRepo.GetByDocument(ctx, documentID)
}

// Reprocess resets a terminal document back into the pipeline at the OCR
// stage. The existing analysis row and chunks stay visible until the re-run
// replaces them.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	doc, err := s.authorize(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	if !doc.Status.IsTerminal() {
		return nil, &ConflictError{Resource: "document " + documentID, Reason: "still being processed"}
	}

	doc.Status = models.DocumentStatusQueued
	doc.CurrentStage = models.StageOCR
	doc.RetryCount = 0
	doc.Errors = nil
	doc.ProcessingStartedAt = nil
	doc.ProcessingCompletedAt = nil

	if err := s.documentRepo.Save(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, documentID, 0); err != nil {
		return nil, err
	}

	s.logger.Info("document requeued for reprocessing", "document_id", documentID)
	return doc, nil
}

// Archive marks a completed document archived, keeping its data readable
func (s *DocumentService) Archive(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	doc, err := s.authorize(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusCompleted && doc.Status != models.DocumentStatusFailed {
		return nil, &ConflictError{Resource: "document " + documentID, Reason: "only terminal documents can be archived"}
	}

	doc.Status = models.DocumentStatusArchived
	if err := s.documentRepo.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a document and everything hanging off it: queue entry,
// analysis row, indexed chunks, staged chunks and raw bytes. Each dependent
// is removed before the registry row, so a crash mid-cascade leaves the
// document visible and the cascade re-runnable.
func (s *DocumentService) Delete(ctx context.Context, ownerID, documentID string) error {
	if _, err := s.authorize(ctx, ownerID, documentID); err != nil {
		return err
	}

	if err := s.queue.Remove(ctx, documentID); err != nil {
		return err
	}
	if err := s.analysisRepo.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if _, err := s.indexer.RemoveDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.artifacts.DeleteStagedChunks(ctx, documentID); err != nil {
		return err
	}
	if err := s.artifacts.DeleteFile(ctx, documentID); err != nil {
		return err
	}
	if err := s.documentRepo.Delete(ctx, documentID); err != nil {
		return err
	}

	s.logger.Info("document deleted", "document_id", documentID, "owner_id", ownerID)
	return nil
}

// authorize loads the document and verifies ownership. A document owned by
// someone else reads as not found so existence is not leaked.
func (s *DocumentService) authorize(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	doc, err := s.documentRepo.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && doc.OwnerID != ownerID {
		return nil, repositories.DocumentNotFoundError(documentID)
	}
	return doc, nil
}
