package retrieve

import (
	"context"

	"github.com/aramb-dev/agentkit/internal/cache"
	"github.com/aramb-dev/agentkit/internal/domain"
)

// Searcher defines the storage contract for queries.
type Searcher interface {
	KNN(ctx context.Context, namespace string, vector []float32, k int) ([]domain.ScoredChunk, error)
	ListNamespaces(ctx context.Context) ([]domain.NamespaceInfo, error)
}

// ResultCache stores scored result sets keyed by (namespace, query, k).
type ResultCache interface {
	Get(key cache.Key) ([]domain.RetrievedChunk, bool)
	Put(key cache.Key, results []domain.RetrievedChunk)
	Clear()
	Stats() cache.Stats
}
