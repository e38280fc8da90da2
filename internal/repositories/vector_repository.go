package repositories

import (
	"context"
)

// VectorRepository defines the interface for the embedding chunk store.
// This abstracts the nearest-neighbor index and allows for easy testing.
type VectorRepository interface {
	// Collection Management
	CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Chunk Operations
	// ReplaceDocumentChunks deletes every existing chunk for the document and
	// inserts the new set as one operation, so one document never mixes
	// embedding models or dimensions.
	ReplaceDocumentChunks(ctx context.Context, collectionName string, documentID string, chunks []*Chunk) (int, error)
	SearchChunks(ctx context.Context, collectionName string, queryEmbedding []float32, topK int, filter map[string]interface{}) ([]*SearchResult, error)
	GetDocumentChunks(ctx context.Context, collectionName string, documentID string) ([]*Chunk, error)
	DeleteDocument(ctx context.Context, collectionName string, documentID string) (int, error)
	CountChunks(ctx context.Context, collectionName string) (int, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// Chunk represents a bounded span of extracted text with one embedding vector
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	TokenCount int       `json:"token_count"`
	Model      string    `json:"model"`
	// ContentType mirrors the owning document's content type so searches can
	// filter by document type without a second lookup
	ContentType string `json:"content_type,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult represents a single result from vector similarity search
type SearchResult struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Text       string                 `json:"text"`
	Score      float32                `json:"score"` // similarity (0-1, higher is better)
	Distance   float32                `json:"distance"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// VectorRepositoryError represents errors from the vector repository
type VectorRepositoryError struct {
	Operation string
	Err       error
	Message   string
}

func (e *VectorRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *VectorRepositoryError) Unwrap() error {
	return e.Err
}

// NewVectorRepositoryError creates a new vector repository error
func NewVectorRepositoryError(operation string, err error, message string) *VectorRepositoryError {
	return &VectorRepositoryError{
		Operation: operation,
		Err:       err,
		Message:   message,
	}
}

// CollectionNotFoundError indicates the collection does not exist
func CollectionNotFoundError(name string) error {
	return NewVectorRepositoryError("get_collection", nil, "collection not found: "+name)
}

// CollectionAlreadyExistsError indicates a duplicate collection
func CollectionAlreadyExistsError(name string) error {
	return NewVectorRepositoryError("create_collection", nil, "collection already exists: "+name)
}
