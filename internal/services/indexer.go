package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"doc-intel/internal/events"
	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
)

// DefaultCollection is the vector collection documents index into
const DefaultCollection = "documents"

// IndexerConfig holds configuration for the indexer
type IndexerConfig struct {
	VectorRepo repositories.VectorRepository
	Embedder   EmbeddingProvider
	Logger     events.Logger

	Collection   string
	ChunkSize    int // characters per chunk
	ChunkOverlap int // characters carried over between adjacent chunks
}

// Indexer turns extracted text into embedded chunks and swaps them into the
// vector store. Re-indexing replaces the document's chunk set wholesale so a
// document never serves results from two embedding generations at once.
type Indexer struct {
	vectorRepo repositories.VectorRepository
	embedder   EmbeddingProvider
	logger     events.Logger

	collection   string
	chunkSize    int
	chunkOverlap int
}

// NewIndexer creates an indexer from config
func NewIndexer(cfg IndexerConfig) *Indexer {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 200
	}
	return &Indexer{
		vectorRepo:   cfg.VectorRepo,
		embedder:     cfg.Embedder,
		logger:       cfg.Logger,
		collection:   cfg.Collection,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
}

// Collection returns the collection the indexer writes to
func (ix *Indexer) Collection() string {
	return ix.collection
}

// EnsureCollection creates the collection if it does not exist yet
func (ix *Indexer) EnsureCollection(ctx context.Context) error {
	exists, err := ix.vectorRepo.CollectionExists(ctx, ix.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return ix.vectorRepo.CreateCollection(ctx, ix.collection, map[string]interface{}{
		"hnsw:space": "cosine",
	})
}

// TextSpan is one chunk of source text with its offsets
type TextSpan struct {
	Text      string
	Index     int
	StartChar int
	EndChar   int
}

// SplitText cuts text into overlapping spans, breaking on whitespace where
// possible. Empty or whitespace-only text yields zero spans, which is a valid
// result, not an error.
func (ix *Indexer) SplitText(text string) []TextSpan {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(text)
	spans := make([]TextSpan, 0)
	step := ix.chunkSize - ix.chunkOverlap

	for start := 0; start < len(runes); start += step {
		end := start + ix.chunkSize
		if end > len(runes) {
			end = len(runes)
		} else {
			// Pull the cut back to the last whitespace so words stay whole
			cut := end
			for cut > start && !isSpaceRune(runes[cut-1]) {
				cut--
			}
			if cut > start+step/2 {
				end = cut
			}
		}

		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			spans = append(spans, TextSpan{
				Text:      chunkText,
				Index:     len(spans),
				StartChar: start,
				EndChar:   end,
			})
		}

		if end == len(runes) {
			break
		}
	}

	return spans
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// PrepareChunks splits and embeds the document's extracted text. Every chunk
// in the returned set carries the same model tag. Zero chunks for an empty
// document is a valid result.
func (ix *Indexer) PrepareChunks(ctx context.Context, doc *models.Document) ([]*repositories.Chunk, error) {
	spans := ix.SplitText(doc.ExtractedText)
	if len(spans) == 0 {
		return nil, nil
	}

	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}

	embeddings, model, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(spans) {
		return nil, NewTransientCapabilityError("embedding", nil,
			fmt.Sprintf("expected %d embeddings, got %d", len(spans), len(embeddings)))
	}

	chunks := make([]*repositories.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = &repositories.Chunk{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			OwnerID:     doc.OwnerID,
			ChunkIndex:  span.Index,
			Text:        span.Text,
			Embedding:   embeddings[i],
			StartChar:   span.StartChar,
			EndChar:     span.EndChar,
			TokenCount:  len(strings.Fields(span.Text)),
			Model:       model,
			ContentType: doc.ContentType,
		}
	}

	return chunks, nil
}

// CommitChunks swaps the document's chunk set in the vector store for the
// given one, returning the number of chunks now indexed. An empty set clears
// the document from the index.
func (ix *Indexer) CommitChunks(ctx context.Context, doc *models.Document, chunks []*repositories.Chunk) (int, error) {
	count, err := ix.vectorRepo.ReplaceDocumentChunks(ctx, ix.collection, doc.ID, chunks)
	if err != nil {
		return 0, NewTransientCapabilityError("indexing", err, "")
	}

	ix.logger.Info("indexed document", "document_id", doc.ID, "chunks", count)
	return count, nil
}

// IndexDocument chunks, embeds and stores in one pass. Used by the re-index
// path; the pipeline runs PrepareChunks and CommitChunks as separate stages.
func (ix *Indexer) IndexDocument(ctx context.Context, doc *models.Document) (int, error) {
	chunks, err := ix.PrepareChunks(ctx, doc)
	if err != nil {
		return 0, err
	}
	return ix.CommitChunks(ctx, doc, chunks)
}

// RemoveDocument deletes every chunk for a document from the index
func (ix *Indexer) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	return ix.vectorRepo.DeleteDocument(ctx, ix.collection, documentID)
}
