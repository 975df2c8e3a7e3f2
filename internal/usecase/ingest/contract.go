package ingest

import (
	"context"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// Repository defines the storage contract for document ingestion.
type Repository interface {
	Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error
	DeleteDocument(ctx context.Context, namespace, documentID string) (int, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	ListNamespaces(ctx context.Context) ([]domain.NamespaceInfo, error)
	ListDocuments(ctx context.Context, namespace string) ([]domain.DocumentInfo, error)
}

// ChunkLister reads back stored chunk text. Optional capability used by
// reindexing; drivers that cannot list raw chunks simply don't implement it.
type ChunkLister interface {
	ListChunks(ctx context.Context, namespace string) ([]domain.EmbeddedChunk, error)
}

// Embedder vectorizes chunk text batches.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// CacheInvalidator drops cached query results made stale by writes.
type CacheInvalidator interface {
	InvalidateNamespace(namespace string) int
}
