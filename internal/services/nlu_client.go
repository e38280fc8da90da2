package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// NLUClient talks to the NLU compute backend over HTTP. It implements the
// OCR, analysis and embedding providers. 5xx responses and transport failures
// come back as transient errors; 4xx responses are fatal since retrying the
// same input cannot change the answer.
type NLUClient struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	model      string
	version    string
}

// NewNLUClient creates a new NLU client with default settings
func NewNLUClient(baseURL string) *NLUClient {
	return NewNLUClientWithOptions(baseURL, 60*time.Second, 3)
}

// NewNLUClientWithOptions creates a client with custom settings
func NewNLUClientWithOptions(baseURL string, timeout time.Duration, retries int) *NLUClient {
	return &NLUClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries: retries,
		model:   "nlu-default",
		version: "1",
	}
}

// ============================================================================
// Request/Response Models
// ============================================================================

type ocrResponse struct {
	Text       string `json:"text"`
	TotalPages int    `json:"total_pages"`
}

type analyzeResponse struct {
	Signals      []*AnalysisSignal `json:"signals"`
	ModelName    string            `json:"model_name"`
	ModelVersion string            `json:"model_version"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
}

type embedQueryResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
}

// ============================================================================
// HTTP Helper Methods
// ============================================================================

// doRequest performs an HTTP request with retry and exponential backoff.
// Only transport failures and 5xx responses are retried.
func (c *NLUClient) doRequest(ctx context.Context, capability, method, endpoint string, body interface{}) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, NewTransientCapabilityError(capability, ctx.Err(), "")
			case <-time.After(backoff):
			}
		}

		resp, err := c.makeRequest(ctx, method, endpoint, body)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			resp.Body.Close()
		}
	}

	return nil, NewTransientCapabilityError(capability, lastErr,
		fmt.Sprintf("request failed after %d retries", c.retries))
}

// makeRequest creates and executes an HTTP request
func (c *NLUClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	url := c.baseURL + endpoint

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// decodeResponse reads the response, converting a 4xx into a fatal error
func decodeResponse(capability string, resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return NewFatalCapabilityError(capability, nil,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(bodyBytes)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return NewTransientCapabilityError(capability, nil,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return NewTransientCapabilityError(capability, err, "failed to decode response")
	}

	return nil
}

// ============================================================================
// OCR
// ============================================================================

// RecognizeText sends raw file bytes for text recognition
func (c *NLUClient) RecognizeText(ctx context.Context, fileData []byte, filename string, contentType string) (string, error) {
	url := c.baseURL + "/ocr/recognize"

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return "", NewTransientCapabilityError("ocr", ctx.Err(), "")
			case <-time.After(backoff):
			}
		}

		// Fresh multipart body per attempt (it gets consumed)
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return "", NewFatalCapabilityError("ocr", err, "failed to create form file")
		}
		if _, err := io.Copy(part, bytes.NewReader(fileData)); err != nil {
			return "", NewFatalCapabilityError("ocr", err, "failed to write file data")
		}
		if err := writer.WriteField("content_type", contentType); err != nil {
			return "", NewFatalCapabilityError("ocr", err, "")
		}
		if err := writer.Close(); err != nil {
			return "", NewFatalCapabilityError("ocr", err, "")
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, body)
		if err != nil {
			return "", NewFatalCapabilityError("ocr", err, "failed to create request")
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 500 {
			var result ocrResponse
			if err := decodeResponse("ocr", resp, &result); err != nil {
				return "", err
			}
			return result.Text, nil
		}

		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return "", NewTransientCapabilityError("ocr", lastErr, "recognize failed after retries")
}

// ============================================================================
// Analysis
// ============================================================================

// Analyze runs the backend analysis passes over extracted text
func (c *NLUClient) Analyze(ctx context.Context, text string) ([]*AnalysisSignal, error) {
	req := map[string]interface{}{
		"text": text,
	}

	resp, err := c.doRequest(ctx, "analysis", "POST", "/analyze/text", req)
	if err != nil {
		return nil, err
	}

	var result analyzeResponse
	if err := decodeResponse("analysis", resp, &result); err != nil {
		return nil, err
	}

	if result.ModelName != "" {
		c.model = result.ModelName
		c.version = result.ModelVersion
	}

	return result.Signals, nil
}

// ModelInfo returns the model identity reported by the last analysis call
func (c *NLUClient) ModelInfo() (string, string) {
	return c.model, c.version
}

// ============================================================================
// Embeddings
// ============================================================================

// EmbedBatch generates embeddings for multiple texts in one call
func (c *NLUClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error) {
	req := map[string]interface{}{
		"texts": texts,
	}

	resp, err := c.doRequest(ctx, "embedding", "POST", "/embed/batch", req)
	if err != nil {
		return nil, "", err
	}

	var result embedBatchResponse
	if err := decodeResponse("embedding", resp, &result); err != nil {
		return nil, "", err
	}

	if len(result.Embeddings) != len(texts) {
		return nil, "", NewTransientCapabilityError("embedding", nil,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)))
	}

	return result.Embeddings, result.Model, nil
}

// EmbedQuery generates the embedding for a search query
func (c *NLUClient) EmbedQuery(ctx context.Context, query string) ([]float32, string, error) {
	req := map[string]interface{}{
		"query": query,
	}

	resp, err := c.doRequest(ctx, "embedding", "POST", "/embed/query", req)
	if err != nil {
		return nil, "", err
	}

	var result embedQueryResponse
	if err := decodeResponse("embedding", resp, &result); err != nil {
		return nil, "", err
	}

	return result.Embedding, result.Model, nil
}

// ============================================================================
// Health
// ============================================================================

// HealthCheck checks if the NLU backend is reachable and healthy
func (c *NLUClient) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := c.doRequest(ctx, "health", "GET", "/health", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}

	status, ok := result["status"].(string)
	return ok && status == "healthy", nil
}
