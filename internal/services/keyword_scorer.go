package services

import (
	"math"
	"sort"
	"strings"
	"time"

	"doc-intel/internal/repositories"
)

// KeywordScorer ranks chunks against a query with TF-IDF term weighting.
// It backs the keyword leg of hybrid search.
type KeywordScorer struct{}

// NewKeywordScorer creates a new keyword scorer
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

// Score ranks the given chunks by keyword relevance to the query. Chunks with
// no query term at all are omitted. Results come back sorted, best first;
// equal scores break toward the most recently created document, using the
// per-document times in recency (nil means no tiebreak).
func (ks *KeywordScorer) Score(query string, chunks []*repositories.Chunk, recency map[string]time.Time) []*repositories.SearchResult {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(chunks) == 0 {
		return nil
	}

	// Document frequency per term across the chunk corpus
	docFreq := make(map[string]int)
	chunkTerms := make([]map[string]int, len(chunks))
	for i, chunk := range chunks {
		counts := make(map[string]int)
		for _, term := range tokenize(chunk.Text) {
			counts[term]++
		}
		chunkTerms[i] = counts
		for term := range counts {
			docFreq[term]++
		}
	}

	totalChunks := float64(len(chunks))
	results := make([]*repositories.SearchResult, 0)

	for i, chunk := range chunks {
		counts := chunkTerms[i]
		chunkLen := 0
		for _, n := range counts {
			chunkLen += n
		}
		if chunkLen == 0 {
			continue
		}

		var score float64
		for _, term := range queryTerms {
			freq, ok := counts[term]
			if !ok {
				continue
			}
			tf := float64(freq) / float64(chunkLen)
			// +1 smoothing keeps terms present in every chunk from zeroing out
			idf := math.Log(totalChunks/float64(docFreq[term])) + 1
			score += tf * idf
		}

		if score <= 0 {
			continue
		}

		results = append(results, &repositories.SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
			Score:      float32(score),
			Metadata:   chunk.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return recency[results[i].DocumentID].After(recency[results[j].DocumentID])
	})

	return results
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		term := strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(term) >= 2 {
			terms = append(terms, term)
		}
	}
	return terms
}
