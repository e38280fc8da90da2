package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"doc-intel/internal/events"
	"doc-intel/internal/repositories"
)

// SearchMode selects which retrieval legs run
type SearchMode string

const (
	SearchModeVector  SearchMode = "vector"
	SearchModeKeyword SearchMode = "keyword"
	SearchModeHybrid  SearchMode = "hybrid"
)

// DefaultMaxResults caps result lists when the request does not say
const DefaultMaxResults = 10

// SearchConfig tunes ranking. Vector similarity dominates the hybrid fusion;
// keyword relevance breaks ties and rescues exact-term matches the embedding
// missed.
type SearchConfig struct {
	// VectorWeight and KeywordWeight combine the normalized hybrid legs
	VectorWeight  float32
	KeywordWeight float32
	// SimilarityThreshold drops vector hits below this cosine similarity
	// unless the request overrides it
	SimilarityThreshold float32
}

// DefaultSearchConfig returns the standard ranking configuration
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		VectorWeight:        0.7,
		KeywordWeight:       0.3,
		SimilarityThreshold: 0.7,
	}
}

// SearchService answers queries over a user's indexed chunks. Every path
// filters by owner before ranking; a searcher can never see another user's
// chunks regardless of mode.
type SearchService struct {
	embedder   EmbeddingProvider
	vectorRepo repositories.VectorRepository
	docRepo    repositories.DocumentRepository
	scorer     *KeywordScorer
	logger     events.Logger
	collection string
	config     SearchConfig
	cache      *searchCache
}

// NewSearchService creates a search service with the default ranking config
func NewSearchService(
	embedder EmbeddingProvider,
	vectorRepo repositories.VectorRepository,
	docRepo repositories.DocumentRepository,
	logger events.Logger,
	collection string,
) *SearchService {
	return NewSearchServiceWithConfig(embedder, vectorRepo, docRepo, logger, collection, DefaultSearchConfig())
}

// NewSearchServiceWithConfig creates a search service with explicit ranking
// configuration. Zero weights and threshold fall back to the defaults.
func NewSearchServiceWithConfig(
	embedder EmbeddingProvider,
	vectorRepo repositories.VectorRepository,
	docRepo repositories.DocumentRepository,
	logger events.Logger,
	collection string,
	config SearchConfig,
) *SearchService {
	if collection == "" {
		collection = DefaultCollection
	}
	defaults := DefaultSearchConfig()
	if config.VectorWeight <= 0 {
		config.VectorWeight = defaults.VectorWeight
	}
	if config.KeywordWeight <= 0 {
		config.KeywordWeight = defaults.KeywordWeight
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	return &SearchService{
		embedder:   embedder,
		vectorRepo: vectorRepo,
		docRepo:    docRepo,
		scorer:     NewKeywordScorer(),
		logger:     logger,
		collection: collection,
		config:     config,
		cache:      newSearchCache(5 * time.Minute),
	}
}

// SearchRequest represents a search query
type SearchRequest struct {
	Query      string     `json:"query"`
	OwnerID    string     `json:"-"`
	Mode       SearchMode `json:"mode,omitempty"`
	MaxResults int        `json:"max_results,omitempty"`
	MinScore   *float32   `json:"min_score,omitempty"`
	// DocumentType restricts results to chunks of documents with this
	// content type
	DocumentType string `json:"document_type,omitempty"`
	// SimilarityThreshold overrides the configured vector similarity floor
	SimilarityThreshold *float32 `json:"similarity_threshold,omitempty"`
	UseCache            bool     `json:"use_cache,omitempty"`
}

// SearchHit is one ranked result
type SearchHit struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Text         string  `json:"text"`
	Score        float32 `json:"score"`
	VectorScore  float32 `json:"vector_score,omitempty"`
	KeywordScore float32 `json:"keyword_score,omitempty"`
}

// SearchResponse is the ranked result set for one query
type SearchResponse struct {
	Results      []*SearchHit `json:"results"`
	Query        string       `json:"query"`
	Mode         SearchMode   `json:"mode"`
	TotalResults int          `json:"total_results"`
	SearchTimeMs float64      `json:"search_time_ms"`
	FromCache    bool         `json:"from_cache"`
}

// Search runs the query in the requested mode
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.cache.Get(req); cached != nil {
			cached.FromCache = true
			cached.SearchTimeMs = time.Since(startTime).Seconds() * 1000
			return cached, nil
		}
	}

	var hits []*SearchHit
	var err error
	switch req.Mode {
	case SearchModeVector:
		hits, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		hits, err = s.keywordSearch(ctx, req)
	case SearchModeHybrid:
		hits, err = s.hybridSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	hits = s.rank(hits, req)

	response := &SearchResponse{
		Results:      hits,
		Query:        req.Query,
		Mode:         req.Mode,
		TotalResults: len(hits),
		SearchTimeMs: time.Since(startTime).Seconds() * 1000,
	}

	if req.UseCache {
		s.cache.Set(req, response)
	}

	s.logger.Info("search completed",
		"mode", string(req.Mode), "results", len(hits), "owner_id", req.OwnerID)
	return response, nil
}

func (s *SearchService) validate(req *SearchRequest) error {
	if req.Query == "" {
		return &InvalidQueryError{Reason: "query text is required"}
	}
	if req.OwnerID == "" {
		return &InvalidQueryError{Reason: "owner is required"}
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	switch req.Mode {
	case SearchModeVector, SearchModeKeyword, SearchModeHybrid:
	default:
		return &InvalidQueryError{Reason: "unknown search mode: " + string(req.Mode)}
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}
	if req.MaxResults > 100 {
		return &InvalidQueryError{Reason: "max_results cannot exceed 100"}
	}
	if req.MinScore != nil && (*req.MinScore < 0 || *req.MinScore > 1) {
		return &InvalidQueryError{Reason: "min_score must be between 0 and 1"}
	}
	if req.SimilarityThreshold != nil && (*req.SimilarityThreshold < 0 || *req.SimilarityThreshold > 1) {
		return &InvalidQueryError{Reason: "similarity_threshold must be between 0 and 1"}
	}
	return nil
}

// rank sorts by combined score and truncates. Truncation happens after
// ranking so a weak vector hit can still be displaced by a strong keyword hit.
func (s *SearchService) rank(hits []*SearchHit, req *SearchRequest) []*SearchHit {
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if req.MinScore != nil {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= *req.MinScore {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	if len(hits) > req.MaxResults {
		hits = hits[:req.MaxResults]
	}
	if hits == nil {
		hits = []*SearchHit{}
	}
	return hits
}

// vectorSearch embeds the query and searches the vector store, filtered to
// the requester's own chunks.
func (s *SearchService) vectorSearch(ctx context.Context, req *SearchRequest) ([]*SearchHit, error) {
	embedding, _, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embedding) == 0 {
		return nil, &InvalidQueryError{Reason: "query produced no embedding vector"}
	}

	filter := map[string]interface{}{
		"owner_id": req.OwnerID,
	}
	if req.DocumentType != "" {
		// Chroma requires $and for multi-condition where filters
		filter = map[string]interface{}{
			"$and": []map[string]interface{}{
				{"owner_id": req.OwnerID},
				{"content_type": req.DocumentType},
			},
		}
	}

	// Over-fetch so post-filtering and fusion still fill MaxResults
	results, err := s.vectorRepo.SearchChunks(ctx, s.collection, embedding, req.MaxResults*3, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	threshold := s.config.SimilarityThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	hits := make([]*SearchHit, 0, len(results))
	for _, r := range results {
		if r.Score < threshold {
			continue
		}
		hits = append(hits, &SearchHit{
			ChunkID:     r.ChunkID,
			DocumentID:  r.DocumentID,
			ChunkIndex:  r.ChunkIndex,
			Text:        r.Text,
			Score:       r.Score,
			VectorScore: r.Score,
		})
	}
	return hits, nil
}

// keywordSearch scores the requester's chunks by TF-IDF relevance
func (s *SearchService) keywordSearch(ctx context.Context, req *SearchRequest) ([]*SearchHit, error) {
	chunks, recency, err := s.ownerChunks(ctx, req.OwnerID, req.DocumentType)
	if err != nil {
		return nil, err
	}

	results := s.scorer.Score(req.Query, chunks, recency)
	hits := make([]*SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, &SearchHit{
			ChunkID:      r.ChunkID,
			DocumentID:   r.DocumentID,
			ChunkIndex:   r.ChunkIndex,
			Text:         r.Text,
			Score:        r.Score,
			KeywordScore: r.Score,
		})
	}
	return hits, nil
}

// hybridSearch fuses the vector and keyword legs. Scores are min-max
// normalized per leg, then combined 0.7 vector + 0.3 keyword over the union:
// a chunk found by only one leg keeps zero for the other.
func (s *SearchService) hybridSearch(ctx context.Context, req *SearchRequest) ([]*SearchHit, error) {
	vectorHits, err := s.vectorSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	keywordHits, err := s.keywordSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	normalize(vectorHits, func(h *SearchHit) float32 { return h.VectorScore },
		func(h *SearchHit, v float32) { h.VectorScore = v })
	normalize(keywordHits, func(h *SearchHit) float32 { return h.KeywordScore },
		func(h *SearchHit, v float32) { h.KeywordScore = v })

	merged := make(map[string]*SearchHit, len(vectorHits)+len(keywordHits))
	for _, h := range vectorHits {
		merged[h.ChunkID] = h
	}
	for _, kh := range keywordHits {
		if existing, ok := merged[kh.ChunkID]; ok {
			existing.KeywordScore = kh.KeywordScore
		} else {
			merged[kh.ChunkID] = kh
		}
	}

	hits := make([]*SearchHit, 0, len(merged))
	for _, h := range merged {
		h.Score = s.config.VectorWeight*h.VectorScore + s.config.KeywordWeight*h.KeywordScore
		hits = append(hits, h)
	}
	return hits, nil
}

// normalize rescales one leg's scores to [0,1] with min-max. A leg where all
// scores are equal maps everything to 1 so it still contributes.
func normalize(hits []*SearchHit, get func(*SearchHit) float32, set func(*SearchHit, float32)) {
	if len(hits) == 0 {
		return
	}

	minScore := get(hits[0])
	maxScore := get(hits[0])
	for _, h := range hits[1:] {
		v := get(h)
		if v < minScore {
			minScore = v
		}
		if v > maxScore {
			maxScore = v
		}
	}

	spread := maxScore - minScore
	for _, h := range hits {
		if spread == 0 {
			set(h, 1)
		} else {
			set(h, (get(h)-minScore)/spread)
		}
	}
}

// ownerChunks fetches every indexed chunk belonging to the owner's documents,
// optionally restricted to one content type, plus each document's creation
// time for recency tiebreaks.
func (s *SearchService) ownerChunks(ctx context.Context, ownerID, documentType string) ([]*repositories.Chunk, map[string]time.Time, error) {
	docs, err := s.docRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list owner documents: %w", err)
	}

	chunks := make([]*repositories.Chunk, 0)
	recency := make(map[string]time.Time, len(docs))
	for _, doc := range docs {
		if doc.ChunkCount == 0 {
			continue
		}
		if documentType != "" && doc.ContentType != documentType {
			continue
		}
		docChunks, err := s.vectorRepo.GetDocumentChunks(ctx, s.collection, doc.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load chunks for document %s: %w", doc.ID, err)
		}
		chunks = append(chunks, docChunks...)
		recency[doc.ID] = doc.CreatedAt
	}
	return chunks, recency, nil
}

// ClearCache clears the search cache
func (s *SearchService) ClearCache() {
	s.cache.Clear()
}

// GetCacheStats returns cache statistics
func (s *SearchService) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}

// ============================================================================
// Search Cache Implementation
// ============================================================================

type searchCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	hits    int64
	misses  int64
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

func newSearchCache(ttl time.Duration) *searchCache {
	cache := &searchCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}

	go cache.cleanupLoop()

	return cache
}

func (c *searchCache) cacheKey(req *SearchRequest) string {
	// Every request field that changes the result set must be in the key,
	// or one threshold's results leak into another's
	minScore := float32(-1)
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	threshold := float32(-1)
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	return fmt.Sprintf("%s:%s:%s:%d:%s:%g:%g",
		req.OwnerID, req.Mode, req.Query, req.MaxResults, req.DocumentType, minScore, threshold)
}

func (c *searchCache) Get(req *SearchRequest) *SearchResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.cacheKey(req)
	entry, exists := c.entries[key]

	if !exists || time.Now().After(entry.expiresAt) {
		c.misses++
		return nil
	}

	c.hits++
	// Callers stamp FromCache and timing on the response, so hand out a copy
	// rather than the shared entry
	copied := *entry.response
	return &copied
}

func (c *searchCache) Set(req *SearchRequest, resp *SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.cacheKey(req)
	c.entries[key] = &cacheEntry{
		response:  resp,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *searchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.hits = 0
	c.misses = 0
}

func (c *searchCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hitRate := float64(0)
	total := c.hits + c.misses
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"hits":     c.hits,
		"misses":   c.misses,
		"size":     len(c.entries),
		"hit_rate": hitRate,
	}
}

func (c *searchCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *searchCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
