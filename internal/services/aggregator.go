package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"doc-intel/internal/events"
	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
)

// Aggregator merges the analysis passes for a document into its single
// analysis row and keeps the denormalized summaries on the document in sync.
type Aggregator struct {
	analysisRepo repositories.AnalysisRepository
	logger       events.Logger

	// summaryLimit caps the denormalized lists copied onto the document
	summaryLimit int
}

// NewAggregator creates a new analysis aggregator
func NewAggregator(analysisRepo repositories.AnalysisRepository, logger events.Logger) *Aggregator {
	return &Aggregator{
		analysisRepo: analysisRepo,
		logger:       logger,
		summaryLimit: 10,
	}
}

// Aggregate merges signals into one analysis and upserts it. When every pass
// came back empty it returns NoSignalError and writes nothing: an empty result
// must stay distinguishable from a low-confidence one.
func (a *Aggregator) Aggregate(ctx context.Context, doc *models.Document, signals []*AnalysisSignal, modelName, modelVersion string) (*models.Analysis, error) {
	usable := make([]*AnalysisSignal, 0, len(signals))
	for _, s := range signals {
		if s != nil && !s.Empty() {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		return nil, &NoSignalError{DocumentID: doc.ID}
	}

	analysis := &models.Analysis{
		ID:                 uuid.New().String(),
		DocumentID:         doc.ID,
		OwnerID:            doc.OwnerID,
		CategoryConfidence: make(map[string]float64),
		ModelName:          modelName,
		ModelVersion:       modelVersion,
	}

	entityBest := make(map[string]int) // key -> index into analysis.Entities
	topicBest := make(map[string]int)

	var confidenceSum float64
	var weightSum float64

	for _, signal := range usable {
		// Per-category confidence keeps the max seen for that category
		if signal.Category != "" {
			if existing, ok := analysis.CategoryConfidence[signal.Category]; !ok || signal.Confidence > existing {
				analysis.CategoryConfidence[signal.Category] = signal.Confidence
			}
		}

		// Overall confidence is weighted by how much each pass contributed
		weight := float64(len(signal.Entities) + len(signal.ActionItems) + len(signal.Topics) + len(signal.Risks))
		if signal.Sentiment != nil {
			weight++
		}
		confidenceSum += signal.Confidence * weight
		weightSum += weight

		for _, entity := range signal.Entities {
			key := strings.ToLower(entity.Text) + "|" + entity.Label
			if idx, ok := entityBest[key]; ok {
				if entity.Confidence > analysis.Entities[idx].Confidence {
					analysis.Entities[idx] = entity
				}
				continue
			}
			entityBest[key] = len(analysis.Entities)
			analysis.Entities = append(analysis.Entities, entity)
		}

		for _, topic := range signal.Topics {
			key := strings.ToLower(topic.Name)
			if idx, ok := topicBest[key]; ok {
				if topic.Score > analysis.Topics[idx].Score {
					analysis.Topics[idx] = topic
				}
				continue
			}
			topicBest[key] = len(analysis.Topics)
			analysis.Topics = append(analysis.Topics, topic)
		}

		analysis.ActionItems = append(analysis.ActionItems, signal.ActionItems...)
		analysis.Risks = append(analysis.Risks, signal.Risks...)

		if signal.Sentiment != nil {
			if analysis.Sentiment == nil || signal.Sentiment.Score > analysis.Sentiment.Score {
				analysis.Sentiment = signal.Sentiment
			}
		}
	}

	if weightSum > 0 {
		analysis.OverallConfidence = confidenceSum / weightSum
	}
	analysis.OverallRiskLevel = models.MaxRiskLevel(analysis.Risks)

	analysis.ActionItemsByPriority = make(map[string]int)
	for _, item := range analysis.ActionItems {
		priority := item.Priority
		if priority == "" {
			priority = "unspecified"
		}
		analysis.ActionItemsByPriority[priority]++
	}

	if err := a.analysisRepo.Upsert(ctx, analysis); err != nil {
		return nil, err
	}

	a.applySummaries(doc, analysis)
	a.logger.Info("aggregated analysis",
		"document_id", doc.ID,
		"entities", len(analysis.Entities),
		"action_items", len(analysis.ActionItems),
		"risk_level", analysis.OverallRiskLevel.String())

	return analysis, nil
}

// applySummaries copies capped summaries onto the document for cheap reads
func (a *Aggregator) applySummaries(doc *models.Document, analysis *models.Analysis) {
	doc.EntitySummary = doc.EntitySummary[:0]
	for _, entity := range analysis.Entities {
		if len(doc.EntitySummary) >= a.summaryLimit {
			break
		}
		doc.EntitySummary = append(doc.EntitySummary, entity.Text)
	}

	doc.ActionItemSummary = doc.ActionItemSummary[:0]
	for _, item := range analysis.ActionItems {
		if len(doc.ActionItemSummary) >= a.summaryLimit {
			break
		}
		doc.ActionItemSummary = append(doc.ActionItemSummary, item.Title)
	}

	if analysis.Sentiment != nil {
		doc.Sentiment = analysis.Sentiment.Label
	}
}
