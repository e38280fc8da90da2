package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
)

func newTestSearchService(vectorRepo repositories.VectorRepository, docRepo repositories.DocumentRepository, embedder EmbeddingProvider) *SearchService {
	return NewSearchService(embedder, vectorRepo, docRepo, nopLogger{}, "documents")
}

func ownedChunk(id, docID, text string) *repositories.Chunk {
	return &repositories.Chunk{ID: id, DocumentID: docID, OwnerID: "user-1", Text: text}
}

func seedOwnerDoc(t *testing.T, docRepo *memDocumentRepo, vectorRepo *memVectorRepo, docID string, chunks ...*repositories.Chunk) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, docRepo.Register(ctx, &models.Document{
		ID:           docID,
		OwnerID:      "user-1",
		Status:       models.DocumentStatusCompleted,
		CurrentStage: models.StageComplete,
		ChunkCount:   len(chunks),
	}))
	if len(chunks) > 0 {
		_, err := vectorRepo.ReplaceDocumentChunks(ctx, "documents", docID, chunks)
		require.NoError(t, err)
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newTestSearchService(newMemVectorRepo(), newMemDocumentRepo(), &stubEmbedder{model: "m"})
	ctx := context.Background()

	tests := []struct {
		name string
		req  *SearchRequest
	}{
		{"empty query", &SearchRequest{OwnerID: "user-1"}},
		{"missing owner", &SearchRequest{Query: "contracts"}},
		{"unknown mode", &SearchRequest{Query: "contracts", OwnerID: "user-1", Mode: "fuzzy"}},
		{"max results too large", &SearchRequest{Query: "contracts", OwnerID: "user-1", MaxResults: 101}},
		{"min score above one", &SearchRequest{Query: "contracts", OwnerID: "user-1", MinScore: float32Ptr(1.5)}},
		{"negative min score", &SearchRequest{Query: "contracts", OwnerID: "user-1", MinScore: float32Ptr(-0.1)}},
		{"similarity threshold above one", &SearchRequest{Query: "contracts", OwnerID: "user-1", SimilarityThreshold: float32Ptr(1.1)}},
		{"negative similarity threshold", &SearchRequest{Query: "contracts", OwnerID: "user-1", SimilarityThreshold: float32Ptr(-0.2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(ctx, tt.req)
			assert.True(t, IsInvalidQuery(err))
		})
	}
}

func float32Ptr(v float32) *float32 { return &v }

func TestSearchDefaultsToHybridMode(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	docRepo := newMemDocumentRepo()
	svc := newTestSearchService(vectorRepo, docRepo, &stubEmbedder{model: "m", queryVec: []float32{1, 0}})

	resp, err := svc.Search(context.Background(), &SearchRequest{Query: "contracts", OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, SearchModeHybrid, resp.Mode)
	assert.Equal(t, 0, resp.TotalResults)
	assert.NotNil(t, resp.Results)
}

func TestVectorSearchFiltersByOwnerAndOverFetches(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{
		{ChunkID: "c1", DocumentID: "doc-1", ChunkIndex: 0, Text: "alpha", Score: 0.9},
		{ChunkID: "c2", DocumentID: "doc-1", ChunkIndex: 1, Text: "beta", Score: 0.75},
	}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})

	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query:      "alpha",
		OwnerID:    "user-1",
		Mode:       SearchModeVector,
		MaxResults: 5,
	})
	require.NoError(t, err)

	// Ownership is enforced at the store, not post-hoc
	assert.Equal(t, map[string]interface{}{"owner_id": "user-1"}, vectorRepo.lastFilter)
	// Over-fetch leaves room for fusion and min-score filtering
	assert.Equal(t, 15, vectorRepo.lastTopK)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.Equal(t, float32(0.9), resp.Results[0].VectorScore)
	assert.Equal(t, float32(0.9), resp.Results[0].Score)
}

func TestVectorSearchEmbedderFailure(t *testing.T) {
	svc := newTestSearchService(newMemVectorRepo(), newMemDocumentRepo(),
		&stubEmbedder{err: errors.New("backend down")})

	_, err := svc.Search(context.Background(), &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestVectorSearchEmptyEmbeddingRejected(t *testing.T) {
	svc := newTestSearchService(newMemVectorRepo(), newMemDocumentRepo(), &stubEmbedder{model: "m"})

	_, err := svc.Search(context.Background(), &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector,
	})
	assert.True(t, IsInvalidQuery(err))
}

func TestKeywordSearchOnlyScansIndexedDocuments(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	docRepo := newMemDocumentRepo()
	ctx := context.Background()

	seedOwnerDoc(t, docRepo, vectorRepo, "doc-1",
		ownedChunk("c1", "doc-1", "contract renewal terms and conditions"))

	// Not yet indexed: chunks exist in the store but ChunkCount is zero,
	// so the keyword leg must not surface them
	require.NoError(t, docRepo.Register(ctx, &models.Document{
		ID: "doc-2", OwnerID: "user-1",
		Status: models.DocumentStatusProcessing, CurrentStage: models.StageEmbedding,
	}))
	_, err := vectorRepo.ReplaceDocumentChunks(ctx, "documents", "doc-2",
		[]*repositories.Chunk{ownedChunk("c9", "doc-2", "contract contract contract")})
	require.NoError(t, err)

	svc := newTestSearchService(vectorRepo, docRepo, &stubEmbedder{model: "m"})
	resp, err := svc.Search(ctx, &SearchRequest{
		Query: "contract renewal", OwnerID: "user-1", Mode: SearchModeKeyword,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.Equal(t, resp.Results[0].Score, resp.Results[0].KeywordScore)
	assert.Zero(t, resp.Results[0].VectorScore)
}

func TestHybridSearchFusesBothLegs(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	docRepo := newMemDocumentRepo()

	// Keyword leg sees two chunks: c2 matches strongly, c3 weakly
	seedOwnerDoc(t, docRepo, vectorRepo, "doc-1",
		ownedChunk("c2", "doc-1", "contract renewal contract renewal"),
		ownedChunk("c3", "doc-1", "contract plus a lot of unrelated filler text here"))

	// Vector leg sees c1 and c2
	vectorRepo.searchHits = []*repositories.SearchResult{
		{ChunkID: "c1", DocumentID: "doc-1", ChunkIndex: 0, Text: "alpha", Score: 0.9},
		{ChunkID: "c2", DocumentID: "doc-1", ChunkIndex: 1, Text: "contract renewal contract renewal", Score: 0.75},
	}

	svc := newTestSearchService(vectorRepo, docRepo, &stubEmbedder{model: "m", queryVec: []float32{1, 0}})
	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query: "contract renewal", OwnerID: "user-1", Mode: SearchModeHybrid,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	// Per-leg min-max normalization: vector leg maps c1->1, c2->0;
	// keyword leg maps c2->1, c3->0. Fused at 0.7/0.3 over the union.
	byID := make(map[string]*SearchHit)
	for _, h := range resp.Results {
		byID[h.ChunkID] = h
	}
	assert.InDelta(t, 0.7, byID["c1"].Score, 1e-6)
	assert.InDelta(t, 0.3, byID["c2"].Score, 1e-6)
	assert.InDelta(t, 0.0, byID["c3"].Score, 1e-6)

	// A chunk found by only one leg keeps zero for the other
	assert.Zero(t, byID["c1"].KeywordScore)
	assert.Zero(t, byID["c3"].VectorScore)

	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.Equal(t, "c2", resp.Results[1].ChunkID)
}

func TestVectorSearchAppliesDefaultSimilarityThreshold(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{
		{ChunkID: "c1", DocumentID: "doc-1", Text: "alpha", Score: 0.82},
		{ChunkID: "c2", DocumentID: "doc-1", Text: "beta", Score: 0.5},
	}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})

	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector,
	})
	require.NoError(t, err)

	// 0.82 clears the 0.7 default floor, 0.5 does not
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
}

func TestVectorSearchThresholdOverrides(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{
		{ChunkID: "c1", DocumentID: "doc-1", Text: "alpha", Score: 0.82},
		{ChunkID: "c2", DocumentID: "doc-1", Text: "beta", Score: 0.5},
	}

	// Per-request override relaxes the floor below the configured default
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})
	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector,
		SimilarityThreshold: float32Ptr(0.4),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	// Service-level config raises it instead
	strict := NewSearchServiceWithConfig(&stubEmbedder{model: "m", queryVec: []float32{1, 0}},
		vectorRepo, newMemDocumentRepo(), nopLogger{}, "documents",
		SearchConfig{SimilarityThreshold: 0.9})
	resp, err = strict.Search(context.Background(), &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchDocumentTypeFilter(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	docRepo := newMemDocumentRepo()
	ctx := context.Background()

	require.NoError(t, docRepo.Register(ctx, &models.Document{
		ID: "doc-pdf", OwnerID: "user-1", ContentType: "application/pdf",
		Status: models.DocumentStatusCompleted, CurrentStage: models.StageComplete, ChunkCount: 1,
	}))
	require.NoError(t, docRepo.Register(ctx, &models.Document{
		ID: "doc-txt", OwnerID: "user-1", ContentType: "text/plain",
		Status: models.DocumentStatusCompleted, CurrentStage: models.StageComplete, ChunkCount: 1,
	}))
	_, err := vectorRepo.ReplaceDocumentChunks(ctx, "documents", "doc-pdf",
		[]*repositories.Chunk{ownedChunk("c-pdf", "doc-pdf", "contract renewal terms")})
	require.NoError(t, err)
	_, err = vectorRepo.ReplaceDocumentChunks(ctx, "documents", "doc-txt",
		[]*repositories.Chunk{ownedChunk("c-txt", "doc-txt", "contract renewal terms")})
	require.NoError(t, err)

	svc := newTestSearchService(vectorRepo, docRepo, &stubEmbedder{model: "m", queryVec: []float32{1, 0}})

	// The keyword leg only scans documents of the requested type
	resp, err := svc.Search(ctx, &SearchRequest{
		Query: "contract renewal", OwnerID: "user-1", Mode: SearchModeKeyword,
		DocumentType: "application/pdf",
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c-pdf", resp.Results[0].ChunkID)

	// The vector leg pushes the type into the store filter alongside ownership
	_, err = svc.Search(ctx, &SearchRequest{
		Query: "contract renewal", OwnerID: "user-1", Mode: SearchModeVector,
		DocumentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"$and": []map[string]interface{}{
			{"owner_id": "user-1"},
			{"content_type": "application/pdf"},
		},
	}, vectorRepo.lastFilter)
}

func TestSearchMinScoreAndTruncation(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{
		{ChunkID: "c1", Score: 0.9},
		{ChunkID: "c2", Score: 0.8},
		{ChunkID: "c3", Score: 0.45},
		{ChunkID: "c4", Score: 0.2},
	}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})

	// Threshold zero keeps every vector hit in play so min-score does the work
	resp, err := svc.Search(context.Background(), &SearchRequest{
		Query:               "alpha",
		OwnerID:             "user-1",
		Mode:                SearchModeVector,
		MaxResults:          2,
		MinScore:            float32Ptr(0.5),
		SimilarityThreshold: float32Ptr(0),
	})
	require.NoError(t, err)

	// Min-score drops c3/c4 before truncation takes the top two
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.Equal(t, "c2", resp.Results[1].ChunkID)
	assert.Equal(t, 2, resp.TotalResults)
}

func TestSearchCacheServesRepeatedQueries(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{{ChunkID: "c1", Score: 0.9}}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})
	ctx := context.Background()

	req := &SearchRequest{Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector, UseCache: true}
	first, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	// The store changes underneath, but the cached response wins
	vectorRepo.searchHits = nil
	second, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	require.Len(t, second.Results, 1)
	assert.Equal(t, "c1", second.Results[0].ChunkID)

	stats := svc.GetCacheStats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])

	svc.ClearCache()
	third, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Empty(t, third.Results)
}

func TestSearchCacheKeyCoversFilterFields(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{
		{ChunkID: "c1", Score: 0.9},
		{ChunkID: "c2", Score: 0.75},
	}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})
	ctx := context.Background()

	loose, err := svc.Search(ctx, &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector, UseCache: true,
	})
	require.NoError(t, err)
	require.Len(t, loose.Results, 2)

	// Same query with a stricter min-score must not hit the loose entry
	strict, err := svc.Search(ctx, &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector, UseCache: true,
		MinScore: float32Ptr(0.8),
	})
	require.NoError(t, err)
	assert.False(t, strict.FromCache)
	require.Len(t, strict.Results, 1)

	// Nor may a different similarity threshold share an entry
	tight, err := svc.Search(ctx, &SearchRequest{
		Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector, UseCache: true,
		SimilarityThreshold: float32Ptr(0.8),
	})
	require.NoError(t, err)
	assert.False(t, tight.FromCache)
	require.Len(t, tight.Results, 1)
}

func TestSearchCacheHitsDoNotShareResponses(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{{ChunkID: "c1", Score: 0.9}}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})
	ctx := context.Background()

	req := &SearchRequest{Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector, UseCache: true}
	first, err := svc.Search(ctx, req)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)

	// Stamping the second response must not contaminate later hits
	assert.NotSame(t, first, second)
	third, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.NotSame(t, second, third)
	assert.True(t, third.FromCache)
}

func TestSearchCacheDisabledByDefault(t *testing.T) {
	vectorRepo := newMemVectorRepo()
	vectorRepo.searchHits = []*repositories.SearchResult{{ChunkID: "c1", Score: 0.9}}
	svc := newTestSearchService(vectorRepo, newMemDocumentRepo(), &stubEmbedder{model: "m", queryVec: []float32{1, 0}})
	ctx := context.Background()

	req := &SearchRequest{Query: "alpha", OwnerID: "user-1", Mode: SearchModeVector}
	_, err := svc.Search(ctx, req)
	require.NoError(t, err)

	vectorRepo.searchHits = nil
	resp, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Empty(t, resp.Results)
}
