package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"doc-intel/internal/db"
)

// ChromaVectorRepository implements VectorRepository using ChromaDB
type ChromaVectorRepository struct {
	client *db.ChromaDBClient
}

// NewChromaVectorRepository creates a new ChromaDB-backed vector repository
func NewChromaVectorRepository(client *db.ChromaDBClient) VectorRepository {
	return &ChromaVectorRepository{
		client: client,
	}
}

// CreateCollection creates a new collection
func (r *ChromaVectorRepository) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	exists, err := r.CollectionExists(ctx, name)
	if err != nil {
		return NewVectorRepositoryError("create_collection", err, "")
	}
	if exists {
		return CollectionAlreadyExistsError(name)
	}

	if _, err := r.client.CreateCollection(ctx, name, metadata); err != nil {
		return NewVectorRepositoryError("create_collection", err, "failed to create collection: "+name)
	}

	return nil
}

// DeleteCollection deletes a collection
func (r *ChromaVectorRepository) DeleteCollection(ctx context.Context, name string) error {
	if err := r.client.DeleteCollection(ctx, name); err != nil {
		return NewVectorRepositoryError("delete_collection", err, "failed to delete collection: "+name)
	}
	return nil
}

// CollectionExists checks if a collection exists
func (r *ChromaVectorRepository) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := r.client.GetCollection(ctx, name)
	if err != nil {
		// Assume not found error means collection doesn't exist
		return false, nil
	}
	return true, nil
}

// ReplaceDocumentChunks deletes every chunk currently stored for the document,
// then inserts the new set. Callers re-run the whole operation on partial
// failure; since delete runs first, a retry never leaves mixed generations.
func (r *ChromaVectorRepository) ReplaceDocumentChunks(ctx context.Context, collectionName string, documentID string, chunks []*Chunk) (int, error) {
	exists, err := r.CollectionExists(ctx, collectionName)
	if err != nil {
		return 0, NewVectorRepositoryError("replace_document_chunks", err, "")
	}
	if !exists {
		return 0, CollectionNotFoundError(collectionName)
	}

	if _, err := r.deleteDocumentChunks(ctx, collectionName, documentID); err != nil {
		return 0, NewVectorRepositoryError("replace_document_chunks", err, "failed to clear existing chunks")
	}

	// Zero chunks is a valid state for an empty document
	if len(chunks) == 0 {
		return 0, nil
	}

	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))

	for i, chunk := range chunks {
		ids[i] = chunk.ID
		documents[i] = chunk.Text
		embeddings[i] = chunk.Embedding
		metadatas[i] = chunkMetadata(chunk)
	}

	if err := r.client.AddDocuments(ctx, collectionName, ids, documents, embeddings, metadatas); err != nil {
		return 0, NewVectorRepositoryError("replace_document_chunks", err, fmt.Sprintf("failed to store %d chunks", len(chunks)))
	}

	return len(chunks), nil
}

// chunkMetadata flattens a chunk into ChromaDB metadata. ChromaDB only
// supports simple types, so arrays and objects are serialized to JSON strings.
func chunkMetadata(chunk *Chunk) map[string]interface{} {
	metadata := map[string]interface{}{
		"document_id": chunk.DocumentID,
		"owner_id":    chunk.OwnerID,
		"chunk_index": chunk.ChunkIndex,
		"start_char":  chunk.StartChar,
		"end_char":    chunk.EndChar,
		"token_count": chunk.TokenCount,
		"model":       chunk.Model,
	}
	if chunk.ContentType != "" {
		metadata["content_type"] = chunk.ContentType
	}

	for k, v := range chunk.Metadata {
		switch val := v.(type) {
		case []string, []interface{}, map[string]interface{}:
			if jsonBytes, err := json.Marshal(val); err == nil {
				metadata[k] = string(jsonBytes)
			}
		default:
			metadata[k] = v
		}
	}

	return metadata
}

// SearchChunks searches for similar chunks
func (r *ChromaVectorRepository) SearchChunks(ctx context.Context, collectionName string, queryEmbedding []float32, topK int, filter map[string]interface{}) ([]*SearchResult, error) {
	exists, err := r.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, NewVectorRepositoryError("search_chunks", err, "")
	}
	if !exists {
		return nil, CollectionNotFoundError(collectionName)
	}

	queryEmbeddings := [][]float32{queryEmbedding}
	results, err := r.client.Query(ctx, collectionName, queryEmbeddings, topK, filter)
	if err != nil {
		return nil, NewVectorRepositoryError("search_chunks", err, "query failed")
	}

	searchResults := make([]*SearchResult, 0)
	if len(results.IDs) > 0 && len(results.IDs[0]) > 0 {
		for i := 0; i < len(results.IDs[0]); i++ {
			metadata := make(map[string]interface{})
			if len(results.Metadatas) > 0 && len(results.Metadatas[0]) > i {
				metadata = results.Metadatas[0][i]
			}

			var text string
			if len(results.Documents) > 0 && len(results.Documents[0]) > i {
				text = results.Documents[0][i]
			}

			var distance float32
			if len(results.Distances) > 0 && len(results.Distances[0]) > i {
				distance = results.Distances[0][i]
			}

			// Similarity score for cosine space (1 - distance)
			score := 1.0 - distance

			documentID := ""
			if docID, ok := metadata["document_id"].(string); ok {
				documentID = docID
			}

			chunkIndex := 0
			if ci, ok := metadata["chunk_index"].(float64); ok {
				chunkIndex = int(ci)
			}

			searchResults = append(searchResults, &SearchResult{
				ChunkID:    results.IDs[0][i],
				DocumentID: documentID,
				ChunkIndex: chunkIndex,
				Text:       text,
				Score:      score,
				Distance:   distance,
				Metadata:   metadata,
			})
		}
	}

	return searchResults, nil
}

// GetDocumentChunks retrieves all chunks for a specific document
func (r *ChromaVectorRepository) GetDocumentChunks(ctx context.Context, collectionName string, documentID string) ([]*Chunk, error) {
	exists, err := r.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, NewVectorRepositoryError("get_document_chunks", err, "")
	}
	if !exists {
		return nil, CollectionNotFoundError(collectionName)
	}

	where := map[string]interface{}{
		"document_id": documentID,
	}
	result, err := r.client.GetDocuments(ctx, collectionName, where, 0, 0, false)
	if err != nil {
		return nil, NewVectorRepositoryError("get_document_chunks", err, "failed to get chunks from ChromaDB")
	}

	chunks := make([]*Chunk, len(result.IDs))
	for i, id := range result.IDs {
		metadata := make(map[string]interface{})
		if i < len(result.Metadatas) {
			metadata = result.Metadatas[i]
		}

		text := ""
		if i < len(result.Documents) {
			text = result.Documents[i]
		}

		chunk := &Chunk{
			ID:         id,
			DocumentID: documentID,
			Text:       text,
			Metadata:   metadata,
		}
		if owner, ok := metadata["owner_id"].(string); ok {
			chunk.OwnerID = owner
		}
		if ci, ok := metadata["chunk_index"].(float64); ok {
			chunk.ChunkIndex = int(ci)
		}
		if sc, ok := metadata["start_char"].(float64); ok {
			chunk.StartChar = int(sc)
		}
		if ec, ok := metadata["end_char"].(float64); ok {
			chunk.EndChar = int(ec)
		}
		if tc, ok := metadata["token_count"].(float64); ok {
			chunk.TokenCount = int(tc)
		}
		if m, ok := metadata["model"].(string); ok {
			chunk.Model = m
		}
		if ct, ok := metadata["content_type"].(string); ok {
			chunk.ContentType = ct
		}

		chunks[i] = chunk
	}

	return chunks, nil
}

// DeleteDocument deletes all chunks for a document and returns how many were
// removed. A document with no chunks deletes cleanly.
func (r *ChromaVectorRepository) DeleteDocument(ctx context.Context, collectionName string, documentID string) (int, error) {
	exists, err := r.CollectionExists(ctx, collectionName)
	if err != nil {
		return 0, NewVectorRepositoryError("delete_document", err, "")
	}
	if !exists {
		return 0, CollectionNotFoundError(collectionName)
	}

	deleted, err := r.deleteDocumentChunks(ctx, collectionName, documentID)
	if err != nil {
		return 0, NewVectorRepositoryError("delete_document", err, "")
	}
	return deleted, nil
}

func (r *ChromaVectorRepository) deleteDocumentChunks(ctx context.Context, collectionName string, documentID string) (int, error) {
	where := map[string]interface{}{
		"document_id": documentID,
	}
	result, err := r.client.GetDocuments(ctx, collectionName, where, 0, 0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to get chunks for document: %w", err)
	}

	if len(result.IDs) == 0 {
		return 0, nil
	}

	if err := r.client.DeleteDocuments(ctx, collectionName, result.IDs); err != nil {
		return 0, fmt.Errorf("failed to delete %d chunks: %w", len(result.IDs), err)
	}

	return len(result.IDs), nil
}

// CountChunks returns the number of chunks in a collection
func (r *ChromaVectorRepository) CountChunks(ctx context.Context, collectionName string) (int, error) {
	count, err := r.client.CountCollection(ctx, collectionName)
	if err != nil {
		return 0, NewVectorRepositoryError("count_chunks", err, "failed to count collection: "+collectionName)
	}
	return count, nil
}

// Ping checks if ChromaDB is alive
func (r *ChromaVectorRepository) Ping(ctx context.Context) error {
	if err := r.client.Heartbeat(ctx); err != nil {
		return NewVectorRepositoryError("ping", err, "ChromaDB heartbeat failed")
	}
	return nil
}

// Close closes the ChromaDB client
func (r *ChromaVectorRepository) Close() error {
	r.client.Close()
	return nil
}
