package tavily

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

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.APIKey != "tvly-test" {
			t.Errorf("api_key = %q", req.APIKey)
		}
		if req.SearchDepth != "basic" {
			t.Errorf("search_depth = %q", req.SearchDepth)
		}
		if req.MaxResults != 3 {
			t.Errorf("max_results = %d", req.MaxResults)
		}
		if req.Query != "golang generics" {
			t.Errorf("query = %q", req.Query)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Go generics","content":"type parameters","url":"https://go.dev/1"},
			{"title":"Tutorial","content":"constraints","url":"https://go.dev/2"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(&Config{APIKey: "tvly-test", BaseURL: server.URL})

	results, err := client.Search(context.Background(), "golang generics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Go generics" || results[0].Snippet != "type parameters" || results[0].URL != "https://go.dev/1" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearch_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewClient(&Config{APIKey: "k", BaseURL: server.URL})

	results, err := client.Search(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearch_ErrorStatusWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer server.Close()

	client := NewClient(&Config{APIKey: "bad", BaseURL: server.URL})

	_, err := client.Search(context.Background(), "q")
	if !errors.Is(err, domain.ErrWebSearchUnavailable) {
		t.Fatalf("expected ErrWebSearchUnavailable, got %v", err)
	}
}

func TestSearch_ConnectionRefused(t *testing.T) {
	client := NewClient(&Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})

	_, err := client.Search(context.Background(), "q")
	if !errors.Is(err, domain.ErrWebSearchUnavailable) {
		t.Fatalf("expected ErrWebSearchUnavailable, got %v", err)
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Search(context.Background(), "q")
	if !errors.Is(err, domain.ErrWebSearchUnavailable) {
		t.Fatalf("expected ErrWebSearchUnavailable, got %v", err)
	}
}
