package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProseExtractorExtract(t *testing.T) {
	pe := NewProseExtractor()
	ctx := context.Background()

	text := "The quarterly revenue projections exceeded expectations. " +
		"Revenue grew substantially across all regional markets."

	result, err := pe.Extract(ctx, text)
	require.NoError(t, err)
	require.NotNil(t, result)

	// Content words surface as key phrases, stop words never do
	assert.Contains(t, result.KeyPhrases, "revenue")
	for _, phrase := range result.KeyPhrases {
		assert.False(t, pe.stopWords[phrase], "stop word %q leaked into key phrases", phrase)
		assert.GreaterOrEqual(t, len(phrase), pe.minLength)
	}
	assert.LessOrEqual(t, len(result.KeyPhrases), pe.maxPhrases)

	// Repeated words rank above one-off words
	if len(result.KeyPhrases) > 1 {
		assert.Equal(t, "revenue", result.KeyPhrases[0])
	}
}

func TestProseExtractorLowercasesPhrases(t *testing.T) {
	pe := NewProseExtractor()

	result, err := pe.Extract(context.Background(), "Budget budget BUDGET forecast")
	require.NoError(t, err)

	for _, phrase := range result.KeyPhrases {
		assert.Equal(t, strings.ToLower(phrase), phrase)
	}
}

func TestProseExtractorCancelledContext(t *testing.T) {
	pe := NewProseExtractor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pe.Extract(ctx, "some text")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestShouldSkipWord(t *testing.T) {
	pe := NewProseExtractor()

	tests := []struct {
		name string
		word string
		tag  string
		skip bool
	}{
		{"noun kept", "revenue", "NN", false},
		{"stop word skipped", "the", "DT", true},
		{"short token skipped", "a", "DT", true},
		{"pure number skipped", "2026", "CD", true},
		{"punctuation skipped", "--", ".", true},
		{"preposition tag skipped", "across", "IN", true},
		{"pronoun tag skipped", "themselves", "PRP", true},
		{"adjective kept", "quarterly", "JJ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.skip, pe.shouldSkipWord(tt.word, tt.tag))
		})
	}
}

func TestPosScore(t *testing.T) {
	// Proper nouns outrank common nouns, which outrank verbs and adverbs
	assert.Greater(t, posScore("NNP"), posScore("NN"))
	assert.Greater(t, posScore("NN"), posScore("VB"))
	assert.Greater(t, posScore("VB"), posScore("RB"))

	// Unknown tags get the neutral score
	assert.Equal(t, 1.0, posScore("UH"))
}

func TestTokenClassifiers(t *testing.T) {
	assert.True(t, isPureNumber("12345"))
	assert.False(t, isPureNumber("12a"))
	assert.False(t, isPureNumber(""))

	assert.True(t, isPunctuation("..."))
	assert.True(t, isPunctuation("$%"))
	assert.False(t, isPunctuation("a."))
	assert.False(t, isPunctuation(""))
}
