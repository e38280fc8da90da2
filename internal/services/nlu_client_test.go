package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

func setupTestNLUServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *NLUClient) {
	server := httptest.NewServer(handler)
	// Short retry budget keeps the backoff sleeps out of the test run
	client := NewNLUClientWithOptions(server.URL, 5*time.Second, 1)
	return server, client
}

// ============================================================================
// OCR Tests
// ============================================================================

func TestRecognizeText(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr/recognize" {
			t.Errorf("Expected path /ocr/recognize, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Expected a file part: %v", err)
		}
		defer file.Close()

		if header.Filename != "report.pdf" {
			t.Errorf("Expected filename 'report.pdf', got %s", header.Filename)
		}
		if r.FormValue("content_type") != "application/pdf" {
			t.Errorf("Expected content_type field, got %s", r.FormValue("content_type"))
		}

		response := ocrResponse{
			Text:       "recognized text",
			TotalPages: 2,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	text, err := client.RecognizeText(ctx, []byte("%PDF-1.4"), "report.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("RecognizeText failed: %v", err)
	}

	if text != "recognized text" {
		t.Errorf("Expected 'recognized text', got %s", text)
	}
}

func TestRecognizeTextRetriesOn5xx(t *testing.T) {
	attempts := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		// The multipart body must be rebuilt per attempt; an empty retry
		// body would fail to parse here
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Retry attempt carried a broken body: %v", err)
		}

		response := ocrResponse{Text: "second try"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	text, err := client.RecognizeText(ctx, []byte("bytes"), "doc.png", "image/png")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}

	if text != "second try" {
		t.Errorf("Expected 'second try', got %s", text)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

// ============================================================================
// Analysis Tests
// ============================================================================

func TestAnalyze(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze/text" {
			t.Errorf("Expected path /analyze/text, got %s", r.URL.Path)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req["text"] != "contract text" {
			t.Errorf("Expected text 'contract text', got %v", req["text"])
		}

		response := analyzeResponse{
			Signals: []*AnalysisSignal{
				{Category: "entities", Confidence: 0.9},
				{Category: "risks", Confidence: 0.7},
			},
			ModelName:    "nlu-large",
			ModelVersion: "3",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	signals, err := client.Analyze(ctx, "contract text")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(signals) != 2 {
		t.Fatalf("Expected 2 signals, got %d", len(signals))
	}
	if signals[0].Category != "entities" {
		t.Errorf("Expected category 'entities', got %s", signals[0].Category)
	}

	// Model identity is captured from the response
	model, version := client.ModelInfo()
	if model != "nlu-large" {
		t.Errorf("Expected model 'nlu-large', got %s", model)
	}
	if version != "3" {
		t.Errorf("Expected version '3', got %s", version)
	}
}

// ============================================================================
// Embed Tests
// ============================================================================

func TestNLUEmbedBatch(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/batch" {
			t.Errorf("Expected path /embed/batch, got %s", r.URL.Path)
		}

		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		texts, _ := req["texts"].([]interface{})
		if len(texts) != 2 {
			t.Errorf("Expected 2 texts, got %d", len(texts))
		}

		response := embedBatchResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			Dimension:  2,
			Model:      "embed-small",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	embeddings, model, err := client.EmbedBatch(ctx, []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if len(embeddings) != 2 {
		t.Errorf("Expected 2 embeddings, got %d", len(embeddings))
	}
	if model != "embed-small" {
		t.Errorf("Expected model 'embed-small', got %s", model)
	}
}

func TestNLUEmbedBatchCountMismatch(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		response := embedBatchResponse{
			Embeddings: [][]float32{{0.1}},
			Dimension:  1,
			Model:      "embed-small",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	_, _, err := client.EmbedBatch(ctx, []string{"one", "two", "three"})
	if err == nil {
		t.Fatal("Expected error when embedding count mismatches input count")
	}
	if !IsTransient(err) {
		t.Errorf("Expected transient error, got %v", err)
	}
}

func TestNLUEmbedQuery(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/query" {
			t.Errorf("Expected path /embed/query, got %s", r.URL.Path)
		}

		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["query"] != "search query" {
			t.Errorf("Expected query 'search query', got %v", req["query"])
		}

		response := embedQueryResponse{
			Embedding: []float32{0.7, 0.8, 0.9},
			Dimension: 3,
			Model:     "embed-small",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	embedding, model, err := client.EmbedQuery(ctx, "search query")
	if err != nil {
		t.Fatalf("EmbedQuery failed: %v", err)
	}

	if len(embedding) != 3 {
		t.Errorf("Expected 3 values in embedding, got %d", len(embedding))
	}
	if model != "embed-small" {
		t.Errorf("Expected model 'embed-small', got %s", model)
	}
}

// ============================================================================
// Error Handling Tests
// ============================================================================

func TestRetryLogic(t *testing.T) {
	attempts := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		response := analyzeResponse{Signals: []*AnalysisSignal{{Category: "topics", Confidence: 0.5}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	signals, err := client.Analyze(ctx, "test")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}

	if len(signals) != 1 {
		t.Errorf("Expected 1 signal, got %d", len(signals))
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestExhaustedRetriesAreTransient(t *testing.T) {
	attempts := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	_, err := client.Analyze(ctx, "test")
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if !IsTransient(err) {
		t.Errorf("Expected transient error, got %v", err)
	}
	// retries=1 means one initial attempt plus one retry
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestClientError4xxIsFatal(t *testing.T) {
	attempts := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": "text too long"}`))
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	_, err := client.Analyze(ctx, "test")
	if err == nil {
		t.Fatal("Expected error for 422 response")
	}
	if !IsFatal(err) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	// Client errors must not be retried
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestContextCancellation(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Analyze(ctx, "test")
	if err == nil {
		t.Fatal("Expected context deadline exceeded error")
	}
}

// ============================================================================
// Health Check Tests
// ============================================================================

func TestNLUHealthCheck(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected path /health, got %s", r.URL.Path)
		}

		response := map[string]interface{}{"status": "healthy"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	ctx := context.Background()
	healthy, err := client.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !healthy {
		t.Error("Expected backend to be healthy")
	}
}

func TestNLUHealthCheckUnhealthyStatus(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{"status": "degraded"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}

	server, client := setupTestNLUServer(t, handler)
	defer server.Close()

	healthy, err := client.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if healthy {
		t.Error("Expected degraded status to report unhealthy")
	}
}

// ============================================================================
// Custom Client Configuration Tests
// ============================================================================

func TestNewNLUClientWithOptions(t *testing.T) {
	client := NewNLUClientWithOptions(
		"http://localhost:8000",
		30*time.Second,
		5,
	)

	if client.baseURL != "http://localhost:8000" {
		t.Errorf("Expected baseURL http://localhost:8000, got %s", client.baseURL)
	}
	if client.retries != 5 {
		t.Errorf("Expected 5 retries, got %d", client.retries)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", client.httpClient.Timeout)
	}
}
