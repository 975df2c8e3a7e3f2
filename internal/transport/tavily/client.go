// Package tavily implements the web search collaborator on the Tavily API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/metrics"
)

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 3
	defaultTimeout    = 10 * time.Second
)

var _ domain.WebSearcher = (*Client)(nil)

// Config holds the web search provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client searches the web through the Tavily REST API.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Tavily search client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search implements domain.WebSearcher.
func (c *Client) Search(ctx context.Context, query string) ([]domain.WebResult, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  c.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.WebSearchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("web search request: %v: %w", err, domain.ErrWebSearchUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.WebSearchTotal.WithLabelValues("error").Inc()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("web search status %d: %s: %w",
			resp.StatusCode, string(data), domain.ErrWebSearchUnavailable)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.WebSearchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode search response: %v: %w", err, domain.ErrWebSearchUnavailable)
	}

	metrics.WebSearchTotal.WithLabelValues("success").Inc()
	c.logger.Debug("web search completed",
		zap.Int("results", len(parsed.Results)),
		zap.Duration("duration", time.Since(start)))

	results := make([]domain.WebResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, domain.WebResult{
			Title:   r.Title,
			Snippet: r.Content,
			URL:     r.URL,
		})
	}
	return results, nil
}

// Disabled is the searcher wired when no API key is configured. Every call
// reports the unavailability sentinel so hybrid retrieval degrades to
// documents only.
type Disabled struct{}

// Search implements domain.WebSearcher.
func (Disabled) Search(context.Context, string) ([]domain.WebResult, error) {
	return nil, fmt.Errorf("web search not configured: %w", domain.ErrWebSearchUnavailable)
}
