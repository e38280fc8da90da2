package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ChromaDBClient wraps HTTP calls to the ChromaDB v2 API.
// This avoids compatibility issues with the official Go client library.
type ChromaDBClient struct {
	serverURL  string
	baseURL    string
	httpClient *http.Client

	// collection name -> id, populated lazily. The v2 API addresses
	// collections by id, not name.
	idCache map[string]string
	cacheMu sync.RWMutex
}

// ChromaDBConfig holds configuration for ChromaDB connection
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration
}

// Collection represents a ChromaDB collection
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// GetResponse represents the response from a get request
type GetResponse struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings,omitempty"`
}

// QueryResponse represents the response from a query. The outer slice
// indexes query embeddings, the inner slice the matches for that query.
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// NewChromaDBClient creates a new ChromaDB client with v2 API support
func NewChromaDBClient(config ChromaDBConfig) *ChromaDBClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	serverURL := fmt.Sprintf("http://%s:%d", config.Host, config.Port)

	// The v2 API scopes collection operations under tenant and database
	baseURL := fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s",
		serverURL, config.Tenant, config.Database)

	return &ChromaDBClient{
		serverURL: serverURL,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		idCache: make(map[string]string),
	}
}

// doJSON issues a request and decodes the JSON response into out (when out
// is non-nil). Any status outside okStatuses is returned as an error with
// the response body attached.
func (c *ChromaDBClient) doJSON(ctx context.Context, method, url string, payload interface{}, out interface{}, okStatuses ...int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, status := range okStatuses {
		if resp.StatusCode == status {
			ok = true
			break
		}
	}
	if !ok {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chromadb request failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Heartbeat checks if ChromaDB is alive
func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	url := c.serverURL + "/api/v2/heartbeat"
	if err := c.doJSON(ctx, http.MethodGet, url, nil, nil, http.StatusOK); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	return nil
}

// collectionID resolves a collection name to its id, caching the result
func (c *ChromaDBClient) collectionID(ctx context.Context, name string) (string, error) {
	c.cacheMu.RLock()
	id, cached := c.idCache[name]
	c.cacheMu.RUnlock()
	if cached {
		return id, nil
	}

	collection, err := c.GetCollection(ctx, name)
	if err != nil {
		return "", err
	}

	c.cacheMu.Lock()
	c.idCache[name] = collection.ID
	c.cacheMu.Unlock()
	return collection.ID, nil
}

// forgetCollection drops a name from the id cache
func (c *ChromaDBClient) forgetCollection(name string) {
	c.cacheMu.Lock()
	delete(c.idCache, name)
	c.cacheMu.Unlock()
}

// CreateCollection creates a new collection
func (c *ChromaDBClient) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (*Collection, error) {
	if metadata == nil {
		metadata = map[string]interface{}{
			"hnsw:space": "cosine",
		}
	}

	payload := map[string]interface{}{
		"name":     name,
		"metadata": metadata,
	}

	var collection Collection
	url := c.baseURL + "/collections"
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &collection, http.StatusOK, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}

	c.cacheMu.Lock()
	c.idCache[name] = collection.ID
	c.cacheMu.Unlock()
	return &collection, nil
}

// GetCollection retrieves a collection by name
func (c *ChromaDBClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var collection Collection
	url := c.baseURL + "/collections/" + name
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &collection, http.StatusOK); err != nil {
		return nil, fmt.Errorf("get collection %q: %w", name, err)
	}
	return &collection, nil
}

// DeleteCollection deletes a collection
func (c *ChromaDBClient) DeleteCollection(ctx context.Context, name string) error {
	url := c.baseURL + "/collections/" + name
	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	c.forgetCollection(name)
	return nil
}

// CountCollection returns the number of documents in a collection
func (c *ChromaDBClient) CountCollection(ctx context.Context, name string) (int, error) {
	id, err := c.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}

	var count int
	url := fmt.Sprintf("%s/collections/%s/count", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &count, http.StatusOK); err != nil {
		return 0, fmt.Errorf("count collection %q: %w", name, err)
	}
	return count, nil
}

// AddDocuments adds documents with embeddings to a collection
func (c *ChromaDBClient) AddDocuments(ctx context.Context, collectionName string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
	}
	if metadatas != nil {
		payload["metadatas"] = metadatas
	}

	url := fmt.Sprintf("%s/collections/%s/add", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, nil, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("add documents to %q: %w", collectionName, err)
	}
	return nil
}

// Query searches for nearest neighbors of the query embeddings
func (c *ChromaDBClient) Query(ctx context.Context, collectionName string, queryEmbeddings [][]float32, nResults int, where map[string]interface{}) (*QueryResponse, error) {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"query_embeddings": queryEmbeddings,
		"n_results":        nResults,
	}
	if where != nil {
		payload["where"] = where
	}

	var queryResp QueryResponse
	url := fmt.Sprintf("%s/collections/%s/query", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &queryResp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("query %q: %w", collectionName, err)
	}
	return &queryResp, nil
}

// DeleteDocuments deletes documents from a collection by IDs
func (c *ChromaDBClient) DeleteDocuments(ctx context.Context, collectionName string, ids []string) error {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"ids": ids,
	}

	url := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, nil, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("delete documents from %q: %w", collectionName, err)
	}
	return nil
}

// GetDocuments retrieves documents from a collection with optional filtering
func (c *ChromaDBClient) GetDocuments(ctx context.Context, collectionName string, where map[string]interface{}, limit int, offset int, includeEmbeddings bool) (*GetResponse, error) {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	include := []string{"documents", "metadatas"}
	if includeEmbeddings {
		include = append(include, "embeddings")
	}

	payload := map[string]interface{}{
		"include": include,
	}
	if len(where) > 0 {
		payload["where"] = where
	}
	if limit > 0 {
		payload["limit"] = limit
	} else {
		// No paging requested: fetch everything
		payload["limit"] = 100000
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	var getResp GetResponse
	url := fmt.Sprintf("%s/collections/%s/get", c.baseURL, id)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &getResp, http.StatusOK); err != nil {
		return nil, fmt.Errorf("get documents from %q: %w", collectionName, err)
	}
	return &getResp, nil
}

// Close closes idle HTTP connections
func (c *ChromaDBClient) Close() {
	c.httpClient.CloseIdleConnections()
}
