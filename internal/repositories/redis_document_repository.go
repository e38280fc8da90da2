package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"doc-intel/internal/models"
)

const (
	// Redis key prefixes
	documentKeyPrefix = "document:"
	documentIndexKey  = "documents:index"
	ownerIndexPrefix  = "owner:"
	statusIndexPrefix = "status:"
)

// RedisDocumentRepository implements DocumentRepository using Redis
type RedisDocumentRepository struct {
	client    *redis.Client
	auditHook AuditHook
}

// NewRedisDocumentRepository creates a new Redis-based document repository
func NewRedisDocumentRepository(client *redis.Client) *RedisDocumentRepository {
	return &RedisDocumentRepository{
		client: client,
	}
}

// SetAuditHook installs a post-commit hook invoked after each successful
// create/update/delete.
func (r *RedisDocumentRepository) SetAuditHook(hook AuditHook) {
	r.auditHook = hook
}

func (r *RedisDocumentRepository) audit(operation, entityID string) {
	if r.auditHook != nil {
		r.auditHook(operation, "document", entityID)
	}
}

// Register stores a new document in the registry
func (r *RedisDocumentRepository) Register(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	exists, err := r.Exists(ctx, doc.ID)
	if err != nil {
		return NewDocumentRepositoryError("register", doc.ID, err, "")
	}
	if exists {
		return DocumentAlreadyExistsError(doc.ID)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return NewDocumentRepositoryError("register", doc.ID, err, "failed to marshal document")
	}

	// Use transaction to ensure atomicity
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, documentKeyPrefix+doc.ID, docJSON, 0)
	pipe.SAdd(ctx, documentIndexKey, doc.ID)
	pipe.SAdd(ctx, ownerIndexPrefix+doc.OwnerID, doc.ID)
	pipe.SAdd(ctx, statusIndexPrefix+string(doc.Status), doc.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewDocumentRepositoryError("register", doc.ID, err, "failed to execute transaction")
	}

	r.audit("create", doc.ID)
	return nil
}

// Get retrieves a document by ID
func (r *RedisDocumentRepository) Get(ctx context.Context, documentID string) (*models.Document, error) {
	docJSON, err := r.client.Get(ctx, documentKeyPrefix+documentID).Result()
	if err == redis.Nil {
		return nil, DocumentNotFoundError(documentID)
	}
	if err != nil {
		return nil, NewDocumentRepositoryError("get", documentID, err, "")
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, NewDocumentRepositoryError("get", documentID, err, "failed to unmarshal document")
	}

	return &doc, nil
}

// Save replaces the full document state atomically, keeping indexes in sync.
// State and stage artifacts land in the same transaction.
func (r *RedisDocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	existing, err := r.Get(ctx, doc.ID)
	if err != nil {
		return err
	}

	doc.UpdatedAt = time.Now()

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return NewDocumentRepositoryError("save", doc.ID, err, "failed to marshal document")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, documentKeyPrefix+doc.ID, docJSON, 0)

	if existing.Status != doc.Status {
		pipe.SRem(ctx, statusIndexPrefix+string(existing.Status), doc.ID)
		pipe.SAdd(ctx, statusIndexPrefix+string(doc.Status), doc.ID)
	}
	if existing.OwnerID != doc.OwnerID {
		pipe.SRem(ctx, ownerIndexPrefix+existing.OwnerID, doc.ID)
		pipe.SAdd(ctx, ownerIndexPrefix+doc.OwnerID, doc.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewDocumentRepositoryError("save", doc.ID, err, "failed to execute transaction")
	}

	r.audit("update", doc.ID)
	return nil
}

// Delete removes a document from the registry. Dependent analysis and chunk
// rows are removed by the stores owning them (cascade is orchestrated by the
// deletion service).
func (r *RedisDocumentRepository) Delete(ctx context.Context, documentID string) error {
	doc, err := r.Get(ctx, documentID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, documentKeyPrefix+documentID)
	pipe.SRem(ctx, documentIndexKey, documentID)
	pipe.SRem(ctx, ownerIndexPrefix+doc.OwnerID, documentID)
	pipe.SRem(ctx, statusIndexPrefix+string(doc.Status), documentID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewDocumentRepositoryError("delete", documentID, err, "failed to execute transaction")
	}

	r.audit("delete", documentID)
	return nil
}

// Exists checks if a document exists
func (r *RedisDocumentRepository) Exists(ctx context.Context, documentID string) (bool, error) {
	exists, err := r.client.Exists(ctx, documentKeyPrefix+documentID).Result()
	if err != nil {
		return false, NewDocumentRepositoryError("exists", documentID, err, "")
	}
	return exists > 0, nil
}

// List retrieves all documents
func (r *RedisDocumentRepository) List(ctx context.Context) ([]*models.Document, error) {
	docIDs, err := r.client.SMembers(ctx, documentIndexKey).Result()
	if err != nil {
		return nil, NewDocumentRepositoryError("list", "", err, "")
	}
	return r.getBatch(ctx, docIDs)
}

// ListByOwner retrieves all documents belonging to an owner
func (r *RedisDocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Document, error) {
	docIDs, err := r.client.SMembers(ctx, ownerIndexPrefix+ownerID).Result()
	if err != nil {
		return nil, NewDocumentRepositoryError("list_by_owner", "", err, "")
	}
	return r.getBatch(ctx, docIDs)
}

// ListByStatus retrieves all documents with a specific status
func (r *RedisDocumentRepository) ListByStatus(ctx context.Context, status models.DocumentStatus) ([]*models.Document, error) {
	docIDs, err := r.client.SMembers(ctx, statusIndexPrefix+string(status)).Result()
	if err != nil {
		return nil, NewDocumentRepositoryError("list_by_status", "", err, "")
	}
	return r.getBatch(ctx, docIDs)
}

// CountTotal counts all documents
func (r *RedisDocumentRepository) CountTotal(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, documentIndexKey).Result()
	if err != nil {
		return 0, NewDocumentRepositoryError("count_total", "", err, "")
	}
	return int(count), nil
}

// getBatch retrieves multiple documents by IDs via one pipeline
func (r *RedisDocumentRepository) getBatch(ctx context.Context, documentIDs []string) ([]*models.Document, error) {
	if len(documentIDs) == 0 {
		return []*models.Document{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(documentIDs))
	for i, id := range documentIDs {
		cmds[i] = pipe.Get(ctx, documentKeyPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewDocumentRepositoryError("get_batch", "", err, "failed to execute batch get")
	}

	docs := make([]*models.Document, 0, len(documentIDs))
	for i, cmd := range cmds {
		docJSON, err := cmd.Result()
		if err == redis.Nil {
			// Index member without a row; skip
			continue
		}
		if err != nil {
			return nil, NewDocumentRepositoryError("get_batch", documentIDs[i], err, "")
		}

		var doc models.Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return nil, NewDocumentRepositoryError("get_batch", documentIDs[i], err, "failed to unmarshal document")
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// Ping checks if Redis connection is alive
func (r *RedisDocumentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisDocumentRepository) Close() error {
	return r.client.Close()
}
