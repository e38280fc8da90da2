package services

import (
	"context"

	"doc-intel/internal/models"
)

// Capability providers back the individual pipeline stages. Each provider
// signals failures through TransientCapabilityError or FatalCapabilityError so
// the stage engine can decide between retry and terminal failure.

// OCRProvider turns raw uploaded bytes into plain text
type OCRProvider interface {
	RecognizeText(ctx context.Context, fileData []byte, filename string, contentType string) (string, error)
}

// ExtractionResult holds structured signals pulled out of raw text
type ExtractionResult struct {
	Entities   []models.Entity `json:"entities"`
	KeyPhrases []string        `json:"key_phrases"`
}

// ExtractionProvider pulls entities and key phrases from extracted text
type ExtractionProvider interface {
	Extract(ctx context.Context, text string) (*ExtractionResult, error)
}

// AnalysisSignal is one analysis pass over a document. A document gets several
// passes (entities, action items, topics, risks, sentiment) and the aggregator
// merges them into the single analysis row.
type AnalysisSignal struct {
	Category    string              `json:"category"`
	Confidence  float64             `json:"confidence"`
	Entities    []models.Entity     `json:"entities,omitempty"`
	ActionItems []models.ActionItem `json:"action_items,omitempty"`
	Topics      []models.Topic      `json:"topics,omitempty"`
	Risks       []models.Risk       `json:"risks,omitempty"`
	Sentiment   *models.Sentiment   `json:"sentiment,omitempty"`
}

// Empty reports whether the pass produced nothing usable
func (s *AnalysisSignal) Empty() bool {
	return len(s.Entities) == 0 && len(s.ActionItems) == 0 && len(s.Topics) == 0 &&
		len(s.Risks) == 0 && s.Sentiment == nil
}

// AnalysisProvider runs the analysis passes for a document
type AnalysisProvider interface {
	Analyze(ctx context.Context, text string) ([]*AnalysisSignal, error)
	ModelInfo() (name string, version string)
}

// EmbeddingProvider turns text into embedding vectors. Every vector returned
// by one call comes from the same model.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, string, error)
}
