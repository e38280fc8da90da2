package services

import (
	"context"
	"strings"

	"doc-intel/internal/events"
	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
)

// RegisterPipeline wires the standard processors for every pipeline stage
// into the engine.
func RegisterPipeline(engine *StageEngine, deps PipelineDeps) {
	engine.RegisterProcessor(models.StageUpload, &UploadProcessor{artifacts: deps.Artifacts})
	engine.RegisterProcessor(models.StageOCR, &OCRProcessor{artifacts: deps.Artifacts, ocr: deps.OCR})
	engine.RegisterProcessor(models.StageExtraction, &ExtractionProcessor{extractor: deps.Extractor})
	engine.RegisterProcessor(models.StageAnalysis, &AnalysisProcessor{
		analyzer:   deps.Analyzer,
		aggregator: deps.Aggregator,
		fanout:     deps.Fanout,
		logger:     deps.Logger,
	})
	engine.RegisterProcessor(models.StageEmbedding, &EmbeddingProcessor{indexer: deps.Indexer, artifacts: deps.Artifacts})
	engine.RegisterProcessor(models.StageIndexing, &IndexingProcessor{indexer: deps.Indexer, artifacts: deps.Artifacts})
}

// PipelineDeps collects everything the stage processors need
type PipelineDeps struct {
	Artifacts  repositories.ArtifactStore
	OCR        OCRProvider
	Extractor  ExtractionProvider
	Analyzer   AnalysisProvider
	Aggregator *Aggregator
	Indexer    *Indexer
	Fanout     events.Fanout
	Logger     events.Logger
}

// UploadProcessor confirms the raw upload landed before the pipeline spends
// compute on it
type UploadProcessor struct {
	artifacts repositories.ArtifactStore
}

func (p *UploadProcessor) Run(ctx context.Context, doc *models.Document) error {
	if _, err := p.artifacts.GetFile(ctx, doc.ID); err != nil {
		if repositories.IsNotFound(err) {
			return NewFatalCapabilityError("upload", err, "uploaded file missing from store")
		}
		return NewTransientCapabilityError("upload", err, "")
	}
	return nil
}

// OCRProcessor turns the raw bytes into extracted text. Plain text uploads
// skip the OCR backend entirely.
type OCRProcessor struct {
	artifacts repositories.ArtifactStore
	ocr       OCRProvider
}

func (p *OCRProcessor) Run(ctx context.Context, doc *models.Document) error {
	data, err := p.artifacts.GetFile(ctx, doc.ID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return NewFatalCapabilityError("ocr", err, "uploaded file missing from store")
		}
		return NewTransientCapabilityError("ocr", err, "")
	}

	if strings.HasPrefix(doc.ContentType, "text/") {
		doc.ExtractedText = string(data)
		return nil
	}

	text, err := p.ocr.RecognizeText(ctx, data, doc.Filename, doc.ContentType)
	if err != nil {
		return err
	}
	doc.ExtractedText = text
	return nil
}

// ExtractionProcessor pulls entities and key phrases from the extracted text
type ExtractionProcessor struct {
	extractor ExtractionProvider
}

func (p *ExtractionProcessor) Run(ctx context.Context, doc *models.Document) error {
	result, err := p.extractor.Extract(ctx, doc.ExtractedText)
	if err != nil {
		return err
	}

	doc.KeyPhrases = result.KeyPhrases

	// Seed the entity summary; the analysis stage overwrites it with the
	// aggregated view when one exists
	doc.EntitySummary = doc.EntitySummary[:0]
	for _, entity := range result.Entities {
		if len(doc.EntitySummary) >= 10 {
			break
		}
		doc.EntitySummary = append(doc.EntitySummary, entity.Text)
	}

	return nil
}

// AnalysisProcessor runs the analysis passes, aggregates them into the single
// analysis row, and raises user notifications for what it found.
type AnalysisProcessor struct {
	analyzer   AnalysisProvider
	aggregator *Aggregator
	fanout     events.Fanout
	logger     events.Logger
}

func (p *AnalysisProcessor) Run(ctx context.Context, doc *models.Document) error {
	signals, err := p.analyzer.Analyze(ctx, doc.ExtractedText)
	if err != nil {
		return err
	}

	modelName, modelVersion := p.analyzer.ModelInfo()
	analysis, err := p.aggregator.Aggregate(ctx, doc, signals, modelName, modelVersion)
	if err != nil {
		if IsNoSignal(err) {
			// Re-running identical text cannot produce a signal, so this is a
			// hard stage failure, not a retryable one
			p.logger.Info("no analysis signal", "document_id", doc.ID)
			return NewFatalCapabilityError("analysis", err, "no analysis signal produced")
		}
		return NewTransientCapabilityError("analysis", err, "")
	}

	p.notify(ctx, doc, analysis)
	return nil
}

// notify publishes user-facing notices derived from the aggregate. Failures
// are logged; notifications never block the pipeline.
func (p *AnalysisProcessor) notify(ctx context.Context, doc *models.Document, analysis *models.Analysis) {
	if analysis.OverallRiskLevel.MoreSevereThan(models.RiskLevelLow) {
		envelope, err := models.NewEnvelope(models.EventNotification, models.NotificationEvent{
			Priority: string(models.PriorityForRisk(analysis.OverallRiskLevel)),
			Title:    "Risk detected in " + doc.Filename,
			Message:  "Analysis rated this document " + analysis.OverallRiskLevel.String() + " risk",
		})
		if err == nil {
			if err := p.fanout.Publish(ctx, events.UserChannel(doc.OwnerID), &envelope); err != nil {
				p.logger.Warn("failed to publish risk notification", "document_id", doc.ID, "error", err)
			}
		}
	}

	for _, item := range analysis.ActionItems {
		if item.Assignee == "" {
			continue
		}
		envelope, err := models.NewEnvelope(models.EventActionItemAssigned, models.ActionItemAssignedEvent{
			Title: item.Title,
		})
		if err != nil {
			continue
		}
		if err := p.fanout.Publish(ctx, events.UserChannel(item.Assignee), &envelope); err != nil {
			p.logger.Warn("failed to publish action item assignment", "document_id", doc.ID, "error", err)
		}
	}
}

// EmbeddingProcessor embeds the chunks and parks them for the indexing stage.
// Splitting embed from index keeps the expensive embedding work out of the
// vector-store swap, so an indexing retry never re-embeds.
type EmbeddingProcessor struct {
	indexer   *Indexer
	artifacts repositories.ArtifactStore
}

func (p *EmbeddingProcessor) Run(ctx context.Context, doc *models.Document) error {
	chunks, err := p.indexer.PrepareChunks(ctx, doc)
	if err != nil {
		return err
	}

	if err := p.artifacts.SaveStagedChunks(ctx, doc.ID, chunks); err != nil {
		return NewTransientCapabilityError("embedding", err, "failed to stage chunks")
	}
	return nil
}

// IndexingProcessor commits the staged chunks into the vector store
type IndexingProcessor struct {
	indexer   *Indexer
	artifacts repositories.ArtifactStore
}

func (p *IndexingProcessor) Run(ctx context.Context, doc *models.Document) error {
	chunks, err := p.artifacts.GetStagedChunks(ctx, doc.ID)
	if err != nil {
		if repositories.IsNotFound(err) {
			// Staged chunks expired or were lost; re-run the embedding work
			// in place rather than failing the document
			chunks, err = p.indexer.PrepareChunks(ctx, doc)
			if err != nil {
				return err
			}
		} else {
			return NewTransientCapabilityError("indexing", err, "")
		}
	}

	count, err := p.indexer.CommitChunks(ctx, doc, chunks)
	if err != nil {
		return err
	}

	doc.ChunkCount = count

	if err := p.artifacts.DeleteStagedChunks(ctx, doc.ID); err != nil {
		// Staged copy will expire on its own; not worth failing the stage
		return nil
	}
	return nil
}
