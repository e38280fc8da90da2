package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fileKeyPrefix   = "document:file:"
	stagedKeyPrefix = "document:staged:"

	// stagedChunkTTL bounds how long embedded-but-unindexed chunks survive.
	// A document abandoned between the embedding and indexing stages should
	// not pin its vectors in Redis forever.
	stagedChunkTTL = 24 * time.Hour
)

// ArtifactStore holds per-document byproducts that live outside the document
// row: the raw uploaded bytes and chunks embedded but not yet indexed.
type ArtifactStore interface {
	SaveFile(ctx context.Context, documentID string, data []byte) error
	GetFile(ctx context.Context, documentID string) ([]byte, error)
	DeleteFile(ctx context.Context, documentID string) error

	SaveStagedChunks(ctx context.Context, documentID string, chunks []*Chunk) error
	GetStagedChunks(ctx context.Context, documentID string) ([]*Chunk, error)
	DeleteStagedChunks(ctx context.Context, documentID string) error
}

// RedisArtifactStore implements ArtifactStore on Redis
type RedisArtifactStore struct {
	client *redis.Client
}

// NewRedisArtifactStore creates a new Redis-based artifact store
func NewRedisArtifactStore(client *redis.Client) *RedisArtifactStore {
	return &RedisArtifactStore{
		client: client,
	}
}

// SaveFile stores the raw uploaded bytes for a document
func (s *RedisArtifactStore) SaveFile(ctx context.Context, documentID string, data []byte) error {
	if err := s.client.Set(ctx, fileKeyPrefix+documentID, data, 0).Err(); err != nil {
		return NewDocumentRepositoryError("save_file", documentID, err, "")
	}
	return nil
}

// GetFile retrieves the raw uploaded bytes for a document
func (s *RedisArtifactStore) GetFile(ctx context.Context, documentID string) ([]byte, error) {
	data, err := s.client.Get(ctx, fileKeyPrefix+documentID).Bytes()
	if err == redis.Nil {
		return nil, &NotFoundError{Entity: "document file", EntityID: documentID}
	}
	if err != nil {
		return nil, NewDocumentRepositoryError("get_file", documentID, err, "")
	}
	return data, nil
}

// DeleteFile removes the raw bytes; deleting a missing file is a no-op
func (s *RedisArtifactStore) DeleteFile(ctx context.Context, documentID string) error {
	if err := s.client.Del(ctx, fileKeyPrefix+documentID).Err(); err != nil {
		return NewDocumentRepositoryError("delete_file", documentID, err, "")
	}
	return nil
}

// SaveStagedChunks parks embedded chunks until the indexing stage commits them
func (s *RedisArtifactStore) SaveStagedChunks(ctx context.Context, documentID string, chunks []*Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return NewDocumentRepositoryError("save_staged_chunks", documentID, err, "failed to marshal chunks")
	}
	if err := s.client.Set(ctx, stagedKeyPrefix+documentID, data, stagedChunkTTL).Err(); err != nil {
		return NewDocumentRepositoryError("save_staged_chunks", documentID, err, "")
	}
	return nil
}

// GetStagedChunks retrieves parked chunks for a document
func (s *RedisArtifactStore) GetStagedChunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	data, err := s.client.Get(ctx, stagedKeyPrefix+documentID).Bytes()
	if err == redis.Nil {
		return nil, &NotFoundError{Entity: "staged chunks", EntityID: documentID}
	}
	if err != nil {
		return nil, NewDocumentRepositoryError("get_staged_chunks", documentID, err, "")
	}

	var chunks []*Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, NewDocumentRepositoryError("get_staged_chunks", documentID, err, "failed to unmarshal chunks")
	}
	return chunks, nil
}

// DeleteStagedChunks clears parked chunks after they are committed or the
// document is deleted
func (s *RedisArtifactStore) DeleteStagedChunks(ctx context.Context, documentID string) error {
	if err := s.client.Del(ctx, stagedKeyPrefix+documentID).Err(); err != nil {
		return NewDocumentRepositoryError("delete_staged_chunks", documentID, err, "")
	}
	return nil
}
