package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"doc-intel/internal/models"
)

const analysisKeyPrefix = "analysis:document:"

// RedisAnalysisRepository implements AnalysisRepository using Redis.
// Keying the row by document ID enforces the one-analysis-per-document
// uniqueness constraint structurally.
type RedisAnalysisRepository struct {
	client    *redis.Client
	auditHook AuditHook
}

// NewRedisAnalysisRepository creates a new Redis-based analysis repository
func NewRedisAnalysisRepository(client *redis.Client) *RedisAnalysisRepository {
	return &RedisAnalysisRepository{
		client: client,
	}
}

// SetAuditHook installs a post-commit hook invoked after each successful write
func (r *RedisAnalysisRepository) SetAuditHook(hook AuditHook) {
	r.auditHook = hook
}

// Upsert replaces the single analysis row for the record's document
func (r *RedisAnalysisRepository) Upsert(ctx context.Context, analysis *models.Analysis) error {
	if err := analysis.Validate(); err != nil {
		return err
	}

	key := analysisKeyPrefix + analysis.DocumentID

	existingJSON, err := r.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return NewDocumentRepositoryError("upsert_analysis", analysis.DocumentID, err, "")
	}

	operation := "create"
	if err == nil {
		var existing models.Analysis
		if unmarshalErr := json.Unmarshal([]byte(existingJSON), &existing); unmarshalErr == nil {
			// A row for the same document with a different owner means two
			// writers disagree about the document; refuse rather than clobber.
			if existing.OwnerID != analysis.OwnerID {
				return NewDocumentRepositoryError("upsert_analysis", analysis.DocumentID, nil,
					"analysis owner conflict for document: "+analysis.DocumentID)
			}
			analysis.CreatedAt = existing.CreatedAt
			operation = "update"
		}
	}

	if operation == "create" {
		analysis.CreatedAt = time.Now()
	}
	analysis.UpdatedAt = time.Now()

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return NewDocumentRepositoryError("upsert_analysis", analysis.DocumentID, err, "failed to marshal analysis")
	}

	if err := r.client.Set(ctx, key, analysisJSON, 0).Err(); err != nil {
		return NewDocumentRepositoryError("upsert_analysis", analysis.DocumentID, err, "")
	}

	if r.auditHook != nil {
		r.auditHook(operation, "analysis", analysis.DocumentID)
	}
	return nil
}

// GetByDocument retrieves the analysis for a document
func (r *RedisAnalysisRepository) GetByDocument(ctx context.Context, documentID string) (*models.Analysis, error) {
	analysisJSON, err := r.client.Get(ctx, analysisKeyPrefix+documentID).Result()
	if err == redis.Nil {
		return nil, AnalysisNotFoundError(documentID)
	}
	if err != nil {
		return nil, NewDocumentRepositoryError("get_analysis", documentID, err, "")
	}

	var analysis models.Analysis
	if err := json.Unmarshal([]byte(analysisJSON), &analysis); err != nil {
		return nil, NewDocumentRepositoryError("get_analysis", documentID, err, "failed to unmarshal analysis")
	}

	return &analysis, nil
}

// DeleteByDocument removes the analysis for a document; deleting a missing
// row is a no-op so cascades stay idempotent.
func (r *RedisAnalysisRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := r.client.Del(ctx, analysisKeyPrefix+documentID).Err(); err != nil {
		return NewDocumentRepositoryError("delete_analysis", documentID, err, "")
	}
	if r.auditHook != nil {
		r.auditHook("delete", "analysis", documentID)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (r *RedisAnalysisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
