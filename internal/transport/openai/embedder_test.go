package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newTestServer(t *testing.T, handler func(inputCount int) embeddingResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(len(req.Input)))
	}))
}

func TestEmbed_Batch(t *testing.T) {
	server := newTestServer(t, func(n int) embeddingResponse {
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		// Reverse order: the Index field must drive placement.
		for i := n - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Object:    "embedding",
				Embedding: []float32{float32(i), 1},
				Index:     i,
			})
		}
		resp.Usage.PromptTokens = 10
		resp.Usage.TotalTokens = 10
		return resp
	})
	defer server.Close()

	emb := NewEmbedder(&Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})

	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vecs[%d][0] = %f, order not restored by Index", i, v[0])
		}
	}
}

func TestEmbed_SplitsLargeInput(t *testing.T) {
	var calls int
	server := newTestServer(t, func(n int) embeddingResponse {
		calls++
		if n > 2 {
			t.Errorf("batch of %d exceeds configured size 2", n)
		}
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		for i := 0; i < n; i++ {
			resp.Data = append(resp.Data, embeddingData{Embedding: []float32{1}, Index: i})
		}
		return resp
	})
	defer server.Close()

	emb := NewEmbedder(&Config{APIKey: "k", BaseURL: server.URL, Model: "test-model", BatchSize: 2})

	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vecs))
	}
	if calls != 3 {
		t.Errorf("expected 3 batches, got %d", calls)
	}
}

func TestEmbed_Empty(t *testing.T) {
	emb := NewEmbedder(&Config{APIKey: "k", Model: "test-model"})
	vecs, err := emb.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs != nil {
		t.Errorf("expected nil, got %v", vecs)
	}
}

func TestEmbed_APIErrorWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"model overloaded"}`))
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{APIKey: "k", BaseURL: server.URL, Model: "test-model"})

	_, err := emb.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	server := newTestServer(t, func(int) embeddingResponse {
		return embeddingResponse{
			Object: "list",
			Data:   []embeddingData{{Embedding: []float32{1}, Index: 0}},
		}
	})
	defer server.Close()

	emb := NewEmbedder(&Config{APIKey: "k", BaseURL: server.URL, Model: "test-model"})

	_, err := emb.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestModel(t *testing.T) {
	emb := NewEmbedder(&Config{APIKey: "k", Model: "text-embedding-3-small"})
	if emb.Model() != "text-embedding-3-small" {
		t.Errorf("Model() = %q", emb.Model())
	}
}
