package models

import (
	"time"
)

// Analysis holds the merged AI-analysis outputs for one document.
// There is exactly one analysis row per document; re-analysis replaces it.
type Analysis struct {
	ID         string `json:"analysis_id"`
	DocumentID string `json:"document_id"`
	// OwnerID is duplicated from the document for access-control locality
	OwnerID string `json:"owner_id"`

	Entities    []Entity     `json:"entities,omitempty"`
	ActionItems []ActionItem `json:"action_items,omitempty"`
	Topics      []Topic      `json:"topics,omitempty"`
	Risks       []Risk       `json:"risks,omitempty"`
	Sentiment   *Sentiment   `json:"sentiment,omitempty"`

	// Per-category confidence scores in [0,1]; a category absent from the
	// capability outputs is simply missing from the map.
	CategoryConfidence map[string]float64 `json:"category_confidence,omitempty"`
	OverallConfidence  float64            `json:"overall_confidence"`
	OverallRiskLevel   RiskLevel          `json:"overall_risk_level"`

	// Counts of action items grouped by priority label
	ActionItemsByPriority map[string]int `json:"action_items_by_priority,omitempty"`

	ModelName    string `json:"model_name,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is a named entity extracted from document text
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ActionItem is a detected follow-up task
type ActionItem struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}

// Topic is a detected topic or key phrase with a relevance score
type Topic struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Risk is a single risk finding with a severity level
type Risk struct {
	Description string    `json:"description"`
	Severity    RiskLevel `json:"severity"`
	Category    string    `json:"category,omitempty"`
}

// Sentiment is the document-level sentiment result
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// RiskLevel represents risk severity
type RiskLevel string

const (
	RiskLevelCritical RiskLevel = "critical"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelNone     RiskLevel = "none"
)

// riskRank orders severities; higher means more severe
var riskRank = map[RiskLevel]int{
	RiskLevelNone:     0,
	RiskLevelLow:      1,
	RiskLevelMedium:   2,
	RiskLevelHigh:     3,
	RiskLevelCritical: 4,
}

// IsValid checks if the risk level is known
func (r RiskLevel) IsValid() bool {
	_, ok := riskRank[r]
	return ok
}

// MoreSevereThan reports whether r outranks other
func (r RiskLevel) MoreSevereThan(other RiskLevel) bool {
	return riskRank[r] > riskRank[other]
}

// String returns the string representation of the risk level
func (r RiskLevel) String() string {
	return string(r)
}

// MaxRiskLevel returns the highest severity among the given risks,
// or none for an empty list.
func MaxRiskLevel(risks []Risk) RiskLevel {
	level := RiskLevelNone
	for _, risk := range risks {
		if risk.Severity.MoreSevereThan(level) {
			level = risk.Severity
		}
	}
	return level
}

// Validate checks if the analysis is valid
func (a *Analysis) Validate() error {
	if a.DocumentID == "" {
		return &ValidationError{Field: "document_id", Message: "document ID is required"}
	}
	if a.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Message: "owner ID is required"}
	}
	if a.OverallConfidence < 0 || a.OverallConfidence > 1 {
		return &ValidationError{Field: "overall_confidence", Message: "confidence must be between 0 and 1"}
	}
	if !a.OverallRiskLevel.IsValid() {
		return &ValidationError{Field: "overall_risk_level", Message: "invalid risk level: " + string(a.OverallRiskLevel)}
	}
	return nil
}
