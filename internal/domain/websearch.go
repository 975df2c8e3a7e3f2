package domain

import "context"

// WebSearcher is the external web search collaborator contract.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]WebResult, error)
}

// WebResult is a single web search hit. Scores from the web provider live in a
// different metric space than vector distances and are never mixed with Relevance.
type WebResult struct {
	Title   string
	Snippet string
	URL     string
}
