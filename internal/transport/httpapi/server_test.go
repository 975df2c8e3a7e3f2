package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/cache"
	"github.com/aramb-dev/agentkit/internal/chunker"
	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/metrics"
	"github.com/aramb-dev/agentkit/internal/store/memory"
	hybriduc "github.com/aramb-dev/agentkit/internal/usecase/hybrid"
	ingestuc "github.com/aramb-dev/agentkit/internal/usecase/ingest"
	retrieveuc "github.com/aramb-dev/agentkit/internal/usecase/retrieve"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// stubEmbedder maps text deterministically so tests control KNN distances:
// texts sharing a first word land close to each other.
type stubEmbedder struct{ model string }

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var v [4]float32
		for j, r := range strings.Fields(t)[0] {
			v[j%4] += float32(r)
		}
		out[i] = v[:]
	}
	return out, nil
}
func (e *stubEmbedder) Model() string {
	if e.model == "" {
		return "stub-model"
	}
	return e.model
}

type stubSearcher struct{ results []domain.WebResult }

func (s *stubSearcher) Search(_ context.Context, _ string) ([]domain.WebResult, error) {
	if s.results == nil {
		return nil, domain.ErrWebSearchUnavailable
	}
	return s.results, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	c := cache.New(10, true, nil)
	embed := &stubEmbedder{}
	logger := zap.NewNop()

	ingestSvc := ingestuc.New(store, embed, c, chunker.Config{Size: 900, Overlap: 150}, logger)
	retrieveSvc := retrieveuc.New(store, embed, c, 0, 0, logger)
	hybridSvc := hybriduc.New(retrieveSvc, &stubSearcher{results: []domain.WebResult{
		{Title: "T", Snippet: "S", URL: "https://example.com"},
	}}, 0, logger)

	srv := NewServer(ingestSvc, retrieveSvc, hybridSvc,
		func(model string) domain.Embedder { return &stubEmbedder{model: model} },
		nil, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, decoded
}

func ingestDoc(t *testing.T, ts *httptest.Server, namespace, text, filename string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/"+namespace+"/documents", map[string]any{
		"text":            text,
		"source_filename": filename,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %v", resp.StatusCode, body)
	}
	return body["document_id"].(string)
}

func TestIngestAndRetrieve(t *testing.T) {
	ts := newTestServer(t)

	docID := ingestDoc(t, ts, "docs", "golang is a compiled language", "go.md")
	if docID == "" {
		t.Fatal("empty document id")
	}
	ingestDoc(t, ts, "docs", "python is interpreted", "py.md")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/retrieve", map[string]any{
		"query": "golang compilers",
		"k":     1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	results := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	first := results[0].(map[string]any)
	if first["source_filename"] != "go.md" {
		t.Errorf("top result from %v, want go.md", first["source_filename"])
	}
	if first["citation"].(float64) != 1 {
		t.Errorf("citation = %v", first["citation"])
	}

	formatted := body["formatted"].(string)
	if !strings.Contains(formatted, "Citations:") {
		t.Errorf("formatted output lacks citations:\n%s", formatted)
	}

	// use_cache=false follows the same pipeline minus the cache.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/retrieve", map[string]any{
		"query":     "golang compilers",
		"k":         1,
		"use_cache": false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("uncached status = %d", resp.StatusCode)
	}
	if len(body["results"].([]any)) != 1 {
		t.Errorf("uncached results = %v", body["results"])
	}
}

func TestRetrieve_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/retrieve", map[string]any{"k": 3})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "validation_failed" {
		t.Errorf("code = %v", body["code"])
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/bad%20ns/retrieve", map[string]any{"query": "q"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid namespace status = %d, want 400", resp.StatusCode)
	}
}

func TestNamespaceLifecycle(t *testing.T) {
	ts := newTestServer(t)

	ingestDoc(t, ts, "ns1", "content one", "a.txt")
	ingestDoc(t, ts, "ns2", "content two", "b.txt")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/namespaces", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := len(body["namespaces"].([]any)); got != 2 {
		t.Fatalf("namespaces = %d, want 2", got)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/namespaces/ns1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	_, body = doJSON(t, http.MethodGet, ts.URL+"/v1/namespaces", nil)
	if got := len(body["namespaces"].([]any)); got != 1 {
		t.Errorf("namespaces after delete = %d, want 1", got)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ts := newTestServer(t)

	docID := ingestDoc(t, ts, "docs", "some document body", "doc.txt")

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/namespaces/docs/documents", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	docs := body["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	if docs[0].(map[string]any)["document_id"] != docID {
		t.Errorf("listed id = %v", docs[0].(map[string]any)["document_id"])
	}

	resp, body = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/v1/namespaces/docs/documents/%s", ts.URL, docID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if body["deleted_chunks"].(float64) < 1 {
		t.Errorf("deleted_chunks = %v", body["deleted_chunks"])
	}
}

func TestHybridEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ingestDoc(t, ts, "docs", "golang concurrency model", "go.md")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/hybrid", map[string]any{
		"query": "golang concurrency",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	formatted := body["formatted"].(string)
	if !strings.Contains(formatted, "=== Document results ===") ||
		!strings.Contains(formatted, "=== Web results ===") {
		t.Errorf("missing sections:\n%s", formatted)
	}
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)

	ingestDoc(t, ts, "docs", "cache me if you can", "c.txt")
	doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/retrieve", map[string]any{"query": "cache", "k": 2})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/admin/cache/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cache stats status = %d", resp.StatusCode)
	}
	if body["cache_size"].(float64) != 1 {
		t.Errorf("cache_size = %v, want 1", body["cache_size"])
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/cache/clear", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cache clear status = %d", resp.StatusCode)
	}
	_, body = doJSON(t, http.MethodGet, ts.URL+"/v1/admin/cache/stats", nil)
	if body["cache_size"].(float64) != 0 {
		t.Errorf("cache_size after clear = %v", body["cache_size"])
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/default-k", map[string]any{"k": 8})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("default-k status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/default-k", map[string]any{"k": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("default-k=0 status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/chunking", map[string]any{
		"chunk_size": 500, "overlap": 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chunking status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/chunking", map[string]any{
		"chunk_size": 100, "overlap": 200,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad chunking status = %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/embedding-model", map[string]any{
		"model": "new-model",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("embedding-model status = %d", resp.StatusCode)
	}
	if body["embedding_model"] != "new-model" {
		t.Errorf("embedding_model = %v", body["embedding_model"])
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/admin/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	if body["embedding_model"] != "new-model" {
		t.Errorf("stats embedding_model = %v", body["embedding_model"])
	}
	cfg := body["config"].(map[string]any)
	if cfg["default_k"].(float64) != 8 {
		t.Errorf("default_k = %v, want 8", cfg["default_k"])
	}
	if cfg["chunk_size"].(float64) != 500 {
		t.Errorf("chunk_size = %v, want 500", cfg["chunk_size"])
	}
	if len(body["collections"].([]any)) != 1 {
		t.Errorf("collections = %v", body["collections"])
	}
}

// countingEmbedder tracks how often each embedder instance is used so tests
// can tell which model served a request.
type countingEmbedder struct {
	stubEmbedder
	embeds int
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.embeds++
	return e.stubEmbedder.Embed(ctx, texts)
}

func TestEmbeddingModelSwap_AppliesToIngest(t *testing.T) {
	store := memory.NewStore()
	c := cache.New(10, true, nil)
	logger := zap.NewNop()

	initial := &countingEmbedder{stubEmbedder: stubEmbedder{model: "initial"}}
	var swapped *countingEmbedder
	factory := func(model string) domain.Embedder {
		swapped = &countingEmbedder{stubEmbedder: stubEmbedder{model: model}}
		return swapped
	}

	ingestSvc := ingestuc.New(store, initial, c, chunker.Config{Size: 900, Overlap: 150}, logger)
	retrieveSvc := retrieveuc.New(store, initial, c, 0, 0, logger)
	hybridSvc := hybriduc.New(retrieveSvc, &stubSearcher{}, 0, logger)
	srv := NewServer(ingestSvc, retrieveSvc, hybridSvc, factory, nil, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	ingestDoc(t, ts, "docs", "first document", "a.txt")
	if initial.embeds != 1 {
		t.Fatalf("initial embedder embeds = %d, want 1", initial.embeds)
	}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/embedding-model", map[string]any{
		"model": "next",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("embedding-model status = %d", resp.StatusCode)
	}

	// Ingest and reindex must both run on the swapped model, never the old one.
	ingestDoc(t, ts, "docs", "second document", "b.txt")
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/reindex", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reindex status = %d", resp.StatusCode)
	}
	if initial.embeds != 1 {
		t.Errorf("initial embedder embeds = %d after swap, want 1", initial.embeds)
	}
	if swapped == nil || swapped.embeds != 2 {
		t.Errorf("swapped embedder embeds = %v, want 2", swapped)
	}
}

func TestReindexEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ingestDoc(t, ts, "docs", "reindex target text", "r.txt")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/namespaces/docs/reindex", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["reindexed_chunks"].(float64) != 1 {
		t.Errorf("reindexed_chunks = %v, want 1", body["reindexed_chunks"])
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
}
