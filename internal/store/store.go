// Package store defines the namespace-partitioned vector storage contract.
package store

import (
	"context"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// Store is the storage contract for embedded chunks. Drivers must allow
// concurrent readers during a write to a different namespace and serialize
// writes within one namespace.
type Store interface {
	// Upsert writes a document's chunk set into the namespace, creating the
	// namespace on first write. Idempotent per document: re-ingesting replaces
	// the document's chunks instead of appending.
	Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error

	// KNN returns at most k nearest chunks by the driver's distance metric,
	// ascending by distance. An empty or absent namespace yields an empty
	// result, not an error.
	KNN(ctx context.Context, namespace string, vector []float32, k int) ([]domain.ScoredChunk, error)

	// DeleteDocument removes all chunks of a document and reports how many
	// were removed. Absent namespace or document removes nothing.
	DeleteDocument(ctx context.Context, namespace, documentID string) (int, error)

	// DeleteNamespace removes the namespace and everything in it. Deleting an
	// absent namespace is a no-op.
	DeleteNamespace(ctx context.Context, namespace string) error

	ListNamespaces(ctx context.Context) ([]domain.NamespaceInfo, error)
	ListDocuments(ctx context.Context, namespace string) ([]domain.DocumentInfo, error)
}

// ChunkLister exposes a namespace's full chunk set for re-indexing.
type ChunkLister interface {
	ListChunks(ctx context.Context, namespace string) ([]domain.EmbeddedChunk, error)
}
