// Package memory is the in-process store driver: per-namespace shards with
// brute-force cosine KNN. Suitable for single-node deployments and tests; the
// redis driver covers shared deployments.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/store"
)

var _ store.Store = (*Store)(nil)
var _ store.ChunkLister = (*Store)(nil)

// shard holds one namespace's chunks behind its own lock, so writes to one
// namespace never block readers of another.
type shard struct {
	mu sync.RWMutex
	// chunk id -> chunk
	chunks map[string]domain.EmbeddedChunk
	// document id -> chunk ids, insertion-ordered by chunk index
	docs map[string][]string
}

// Store implements store.Store in memory.
type Store struct {
	mu     sync.RWMutex
	shards map[string]*shard
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{shards: make(map[string]*shard)}
}

func (s *Store) getShard(namespace string) (*shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[namespace]
	return sh, ok
}

func (s *Store) getOrCreateShard(namespace string) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[namespace]
	if !ok {
		sh = &shard{chunks: make(map[string]domain.EmbeddedChunk), docs: make(map[string][]string)}
		s.shards[namespace] = sh
	}
	return sh
}

// Upsert replaces each document's chunk set within the namespace.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err := domain.ValidateNamespace(namespace); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Vector)
	byDoc := make(map[string][]domain.EmbeddedChunk)
	for _, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("chunk %s: got dim %d, want %d: %w",
				c.ID(), len(c.Vector), dim, domain.ErrVectorDimMismatch)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
	}

	sh := s.getOrCreateShard(namespace)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for docID, docChunks := range byDoc {
		// Replace, not append: drop whatever the document had before.
		for _, id := range sh.docs[docID] {
			delete(sh.chunks, id)
		}
		ids := make([]string, 0, len(docChunks))
		for _, c := range docChunks {
			sh.chunks[c.ID()] = c
			ids = append(ids, c.ID())
		}
		sh.docs[docID] = ids
	}
	return nil
}

// KNN runs a brute-force cosine distance scan over the namespace.
func (s *Store) KNN(ctx context.Context, namespace string, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("knn: %w", err)
	}
	if k <= 0 {
		return nil, fmt.Errorf("knn: k must be positive, got %d", k)
	}

	sh, ok := s.getShard(namespace)
	if !ok {
		return nil, nil
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	scored := make([]domain.ScoredChunk, 0, len(sh.chunks))
	for _, c := range sh.chunks {
		if len(c.Vector) != len(vector) {
			return nil, fmt.Errorf("chunk %s: stored dim %d, query dim %d: %w",
				c.ID(), len(c.Vector), len(vector), domain.ErrVectorDimMismatch)
		}
		scored = append(scored, domain.ScoredChunk{Chunk: c.Chunk, Distance: cosineDistance(vector, c.Vector)})
	}

	// Ascending distance; deterministic tie-break by document then ordinal.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		if scored[i].DocumentID != scored[j].DocumentID {
			return scored[i].DocumentID < scored[j].DocumentID
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// DeleteDocument removes a document's chunks and returns the count removed.
func (s *Store) DeleteDocument(ctx context.Context, namespace, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}

	sh, ok := s.getShard(namespace)
	if !ok {
		return 0, nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	ids := sh.docs[documentID]
	for _, id := range ids {
		delete(sh.chunks, id)
	}
	delete(sh.docs, documentID)
	return len(ids), nil
}

// DeleteNamespace drops the whole shard.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shards, namespace)
	return nil
}

// ListNamespaces reports derived chunk and document counts per namespace.
func (s *Store) ListNamespaces(ctx context.Context) ([]domain.NamespaceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.shards))
	for name := range s.shards {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	infos := make([]domain.NamespaceInfo, 0, len(names))
	for _, name := range names {
		sh, ok := s.getShard(name)
		if !ok {
			continue
		}
		sh.mu.RLock()
		infos = append(infos, domain.NamespaceInfo{
			Name:          name,
			DocumentCount: len(sh.docs),
			ChunkCount:    len(sh.chunks),
		})
		sh.mu.RUnlock()
	}
	return infos, nil
}

// ListDocuments reports per-document chunk counts within a namespace.
func (s *Store) ListDocuments(ctx context.Context, namespace string) ([]domain.DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	sh, ok := s.getShard(namespace)
	if !ok {
		return nil, nil
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	infos := make([]domain.DocumentInfo, 0, len(sh.docs))
	for docID, ids := range sh.docs {
		info := domain.DocumentInfo{DocumentID: docID, ChunkCount: len(ids)}
		if len(ids) > 0 {
			info.SourceFilename = sh.chunks[ids[0]].SourceFilename
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DocumentID < infos[j].DocumentID })
	return infos, nil
}

// ListChunks returns a namespace's full chunk set (re-index support).
func (s *Store) ListChunks(ctx context.Context, namespace string) ([]domain.EmbeddedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	sh, ok := s.getShard(namespace)
	if !ok {
		return nil, nil
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([]domain.EmbeddedChunk, 0, len(sh.chunks))
	for _, c := range sh.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

// cosineDistance returns 1 - cos(a, b), range [0, 2]. Zero-magnitude vectors
// are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
