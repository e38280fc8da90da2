package services

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"

	"doc-intel/internal/models"
)

// ProseExtractor is the local extraction provider. It runs entirely in
// process, so the extraction stage keeps working when the NLU backend is down.
type ProseExtractor struct {
	stopWords  map[string]bool
	minLength  int
	maxPhrases int
}

// NewProseExtractor creates a new local extractor
func NewProseExtractor() *ProseExtractor {
	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
		"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
		"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
		"this": true, "that": true, "these": true, "those": true, "i": true, "you": true,
		"he": true, "she": true, "it": true, "we": true, "they": true, "my": true,
		"your": true, "his": true, "her": true, "its": true, "our": true, "their": true,
	}

	return &ProseExtractor{
		stopWords:  stopWords,
		minLength:  2,
		maxPhrases: 20,
	}
}

// Extract pulls named entities and scored key phrases from text
func (pe *ProseExtractor) Extract(ctx context.Context, text string) (*ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransientCapabilityError("extraction", err, "")
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		// The tokenizer rejecting input will reject it again on retry
		return nil, NewFatalCapabilityError("extraction", err, "failed to parse document text")
	}

	entities := make([]models.Entity, 0)
	seen := make(map[string]bool)
	for _, ent := range doc.Entities() {
		key := strings.ToLower(ent.Text) + "|" + ent.Label
		if seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, models.Entity{
			Text:       ent.Text,
			Label:      ent.Label,
			Confidence: 0.8, // prose does not expose per-entity confidence
		})
	}

	return &ExtractionResult{
		Entities:   entities,
		KeyPhrases: pe.keyPhrases(doc),
	}, nil
}

type scoredPhrase struct {
	word  string
	score float64
	freq  int
}

// keyPhrases scores tokens by POS tag and frequency, boosting named entities
func (pe *ProseExtractor) keyPhrases(doc *prose.Document) []string {
	wordFreq := make(map[string]*scoredPhrase)

	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if pe.shouldSkipWord(word, tok.Tag) {
			continue
		}

		score := posScore(tok.Tag)
		if existing, exists := wordFreq[word]; exists {
			existing.freq++
			existing.score += score
		} else {
			wordFreq[word] = &scoredPhrase{word: word, score: score, freq: 1}
		}
	}

	for _, ent := range doc.Entities() {
		word := strings.ToLower(ent.Text)
		if len(word) < pe.minLength || pe.stopWords[word] {
			continue
		}
		if existing, exists := wordFreq[word]; exists {
			existing.score += 2.0
		} else {
			wordFreq[word] = &scoredPhrase{word: word, score: 2.0, freq: 1}
		}
	}

	phrases := make([]scoredPhrase, 0, len(wordFreq))
	for _, p := range wordFreq {
		p.score = p.score * float64(p.freq)
		phrases = append(phrases, *p)
	}

	sort.Slice(phrases, func(i, j int) bool {
		return phrases[i].score > phrases[j].score
	})

	if len(phrases) > pe.maxPhrases {
		phrases = phrases[:pe.maxPhrases]
	}

	result := make([]string, len(phrases))
	for i, p := range phrases {
		result[i] = p.word
	}
	return result
}

// shouldSkipWord filters stop words, short tokens, numbers, punctuation and
// function-word POS tags
func (pe *ProseExtractor) shouldSkipWord(word, posTag string) bool {
	if len(word) < pe.minLength {
		return true
	}
	if pe.stopWords[word] {
		return true
	}
	if isPureNumber(word) || isPunctuation(word) {
		return true
	}

	skipTags := map[string]bool{
		"DT":   true, // determiner
		"IN":   true, // preposition
		"TO":   true, // to
		"CC":   true, // coordinating conjunction
		"PRP":  true, // personal pronoun
		"PRP$": true, // possessive pronoun
		"WP":   true, // wh-pronoun
		"WDT":  true, // wh-determiner
	}
	return skipTags[posTag]
}

// posScore assigns importance based on POS tag
func posScore(posTag string) float64 {
	scores := map[string]float64{
		"NN":   1.5, // noun
		"NNS":  1.5, // plural noun
		"NNP":  2.0, // proper noun
		"NNPS": 2.0, // plural proper noun
		"VB":   1.2, // verb
		"VBD":  1.2,
		"VBG":  1.2,
		"VBN":  1.2,
		"VBP":  1.2,
		"VBZ":  1.2,
		"JJ":   1.3, // adjective
		"JJR":  1.3,
		"JJS":  1.3,
		"RB":   0.8, // adverb
		"RBR":  0.8,
		"RBS":  0.8,
	}

	if score, exists := scores[posTag]; exists {
		return score
	}
	return 1.0
}

func isPureNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func isPunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return len(s) > 0
}
