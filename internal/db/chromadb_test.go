package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// newTestClient points a client at an httptest server
func newTestClient(t *testing.T, handler http.Handler) (*ChromaDBClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}

	client := NewChromaDBClient(ChromaDBConfig{Host: parsed.Hostname(), Port: 8000})
	// Rewrite URLs onto the test server, which listens on a random port
	client.serverURL = server.URL
	client.baseURL = server.URL + "/api/v2/tenants/default_tenant/databases/default_database"
	return client, server
}

func TestNewChromaDBClientDefaults(t *testing.T) {
	client := NewChromaDBClient(ChromaDBConfig{Host: "localhost", Port: 8000})

	if client.httpClient == nil {
		t.Fatal("expected non-nil HTTP client")
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("expected default 30s timeout, got %v", client.httpClient.Timeout)
	}
	if !strings.Contains(client.baseURL, "default_tenant") || !strings.Contains(client.baseURL, "default_database") {
		t.Errorf("expected default tenant and database in base URL, got %s", client.baseURL)
	}
}

func TestHeartbeat(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/heartbeat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": time.Now().UnixNano()})
	}))

	if err := client.Heartbeat(context.Background()); err != nil {
		t.Errorf("Heartbeat() error = %v", err)
	}
}

func TestHeartbeatDown(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if err := client.Heartbeat(context.Background()); err == nil {
		t.Error("expected error for unavailable server")
	}
}

func TestCollectionIDCache(t *testing.T) {
	getCollectionCalls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/collections/docs") && r.Method == http.MethodGet:
			getCollectionCalls++
			json.NewEncoder(w).Encode(Collection{ID: "col-1", Name: "docs"})
		case strings.HasSuffix(r.URL.Path, "/collections/col-1/count"):
			json.NewEncoder(w).Encode(42)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		count, err := client.CountCollection(ctx, "docs")
		if err != nil {
			t.Fatalf("CountCollection() error = %v", err)
		}
		if count != 42 {
			t.Errorf("expected count 42, got %d", count)
		}
	}

	if getCollectionCalls != 1 {
		t.Errorf("expected 1 collection lookup with caching, got %d", getCollectionCalls)
	}
}

func TestDeleteCollectionInvalidatesCache(t *testing.T) {
	lookups := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/collections/docs"):
			lookups++
			json.NewEncoder(w).Encode(Collection{ID: "col-1", Name: "docs"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{})
		case strings.HasSuffix(r.URL.Path, "/count"):
			json.NewEncoder(w).Encode(0)
		}
	}))

	ctx := context.Background()
	if _, err := client.CountCollection(ctx, "docs"); err != nil {
		t.Fatalf("CountCollection() error = %v", err)
	}
	if err := client.DeleteCollection(ctx, "docs"); err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if _, err := client.CountCollection(ctx, "docs"); err != nil {
		t.Fatalf("CountCollection() after delete error = %v", err)
	}

	if lookups != 2 {
		t.Errorf("expected cache miss after delete (2 lookups), got %d", lookups)
	}
}

func TestQueryPassesWhereFilter(t *testing.T) {
	var captured map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(Collection{ID: "col-1", Name: "docs"})
		case strings.HasSuffix(r.URL.Path, "/query"):
			json.NewDecoder(r.Body).Decode(&captured)
			json.NewEncoder(w).Encode(QueryResponse{
				IDs:       [][]string{{"chunk-1"}},
				Documents: [][]string{{"hello"}},
				Metadatas: [][]map[string]interface{}{{{"owner_id": "u1"}}},
				Distances: [][]float32{{0.25}},
			})
		}
	}))

	resp, err := client.Query(context.Background(), "docs", [][]float32{{0.1, 0.2}}, 5,
		map[string]interface{}{"owner_id": "u1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	where, ok := captured["where"].(map[string]interface{})
	if !ok || where["owner_id"] != "u1" {
		t.Errorf("expected where filter forwarded, got %v", captured["where"])
	}
	if captured["n_results"].(float64) != 5 {
		t.Errorf("expected n_results 5, got %v", captured["n_results"])
	}
	if len(resp.IDs) != 1 || resp.IDs[0][0] != "chunk-1" {
		t.Errorf("unexpected query response: %+v", resp)
	}
}

func TestGetDocumentsIncludesEmbeddingsOnRequest(t *testing.T) {
	var captured map[string]interface{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(Collection{ID: "col-1", Name: "docs"})
		case strings.HasSuffix(r.URL.Path, "/get"):
			json.NewDecoder(r.Body).Decode(&captured)
			json.NewEncoder(w).Encode(GetResponse{IDs: []string{"chunk-1"}})
		}
	}))

	if _, err := client.GetDocuments(context.Background(), "docs", nil, 0, 0, true); err != nil {
		t.Fatalf("GetDocuments() error = %v", err)
	}

	include, ok := captured["include"].([]interface{})
	if !ok {
		t.Fatalf("expected include list, got %v", captured["include"])
	}
	found := false
	for _, item := range include {
		if item == "embeddings" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected embeddings in include list, got %v", include)
	}
}

func TestErrorIncludesResponseBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad embedding dimension"}`))
	}))

	_, err := client.GetCollection(context.Background(), "docs")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bad embedding dimension") {
		t.Errorf("expected response body in error, got: %v", err)
	}
}
