package hybrid

import (
	"context"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// DocumentRetriever runs the document sub-path.
type DocumentRetriever interface {
	RetrieveChunks(ctx context.Context, namespace, query string, k int, useCache bool) ([]domain.RetrievedChunk, error)
}
