// Package ingest implements document ingestion: chunking, vectorization, and
// storage writes with query cache invalidation.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/chunker"
	"github.com/aramb-dev/agentkit/internal/domain"
)

// Request describes a document to ingest.
type Request struct {
	Text           string
	Namespace      string
	SessionID      string
	SourceFilename string

	// DocumentID replaces an existing document when set; a fresh ID is
	// generated otherwise.
	DocumentID string

	// ChunkSize and Overlap override the service defaults for this request
	// when both are set.
	ChunkSize int
	Overlap   int
}

// Result reports what ingestion produced.
type Result struct {
	DocumentID string
	ChunkCount int
}

// Service handles document ingestion and namespace management.
type Service struct {
	repo   Repository
	cache  CacheInvalidator
	logger *zap.Logger

	mu       sync.RWMutex
	embed    Embedder
	chunking chunker.Config
}

// New creates an ingest service. The chunking config must be validated by the
// caller; zero values fall back to the defaults.
func New(repo Repository, embed Embedder, cache CacheInvalidator, chunking chunker.Config, logger *zap.Logger) *Service {
	if chunking.Size == 0 {
		chunking.Size = chunker.DefaultSize
		chunking.Overlap = chunker.DefaultOverlap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, cache: cache, chunking: chunking, logger: logger}
}

// Ingest chunks, vectorizes, and stores a document. Re-ingesting with the same
// DocumentID replaces the previous version atomically at the store level.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	if err := domain.ValidateNamespace(req.Namespace); err != nil {
		return Result{}, err
	}

	s.mu.RLock()
	embed := s.embed
	cfg := s.chunking
	s.mu.RUnlock()
	if req.ChunkSize > 0 {
		cfg = chunker.Config{Size: req.ChunkSize, Overlap: req.Overlap}
		if err := cfg.Validate(); err != nil {
			return Result{}, err
		}
	}

	texts, err := chunker.Split(req.Text, cfg.Size, cfg.Overlap)
	if err != nil {
		return Result{}, fmt.Errorf("chunk document: %w", err)
	}
	if len(texts) == 0 {
		return Result{}, fmt.Errorf("document is empty: %w", domain.ErrInvalidArgument)
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	vectors, err := embed.Embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("vectorize document: %w", err)
	}
	if len(vectors) != len(texts) {
		return Result{}, fmt.Errorf("got %d vectors for %d chunks: %w",
			len(vectors), len(texts), domain.ErrEmbeddingUnavailable)
	}

	chunks := make([]domain.EmbeddedChunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.EmbeddedChunk{
			Chunk: domain.Chunk{
				DocumentID:     docID,
				ChunkIndex:     i,
				Text:           text,
				Namespace:      req.Namespace,
				SessionID:      req.SessionID,
				SourceFilename: req.SourceFilename,
			},
			Vector: vectors[i],
		}
	}

	if err := s.repo.Upsert(ctx, req.Namespace, chunks); err != nil {
		return Result{}, fmt.Errorf("store document: %w", err)
	}

	s.cache.InvalidateNamespace(req.Namespace)

	s.logger.Info("document ingested",
		zap.String("namespace", req.Namespace),
		zap.String("document_id", docID),
		zap.Int("chunks", len(chunks)))

	return Result{DocumentID: docID, ChunkCount: len(chunks)}, nil
}

// DeleteDocument removes a document's chunks and returns how many were removed.
func (s *Service) DeleteDocument(ctx context.Context, namespace, documentID string) (int, error) {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	count, err := s.repo.DeleteDocument(ctx, namespace, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	if count > 0 {
		s.cache.InvalidateNamespace(namespace)
	}
	return count, nil
}

// DeleteNamespace removes a namespace and everything under it.
func (s *Service) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := s.repo.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}
	s.cache.InvalidateNamespace(namespace)
	return nil
}

// ListNamespaces returns all namespaces with their chunk counts.
func (s *Service) ListNamespaces(ctx context.Context) ([]domain.NamespaceInfo, error) {
	return s.repo.ListNamespaces(ctx)
}

// ListDocuments returns the documents stored in a namespace.
func (s *Service) ListDocuments(ctx context.Context, namespace string) ([]domain.DocumentInfo, error) {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, namespace)
}

// SetEmbedder swaps the embedder used by subsequent ingests and reindexes.
// Must be swapped together with the query-path embedder: documents and
// queries vectorized under different models are not comparable.
func (s *Service) SetEmbedder(e Embedder) {
	s.mu.Lock()
	s.embed = e
	s.mu.Unlock()
	s.logger.Info("ingest embedder switched", zap.String("model", e.Model()))
}

// SetChunking updates the chunking parameters for subsequent ingests.
// Already-stored documents are untouched until reindexed.
func (s *Service) SetChunking(cfg chunker.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.chunking = cfg
	s.mu.Unlock()
	return nil
}

// Chunking returns the active chunking parameters.
func (s *Service) Chunking() chunker.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunking
}

// ReindexNamespace re-embeds every stored chunk in a namespace with the
// current embedder. Used after an embedding model switch; requires a store
// that can list raw chunk text.
func (s *Service) ReindexNamespace(ctx context.Context, namespace string) (int, error) {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return 0, err
	}

	lister, ok := s.repo.(ChunkLister)
	if !ok {
		return 0, fmt.Errorf("store does not support reindexing")
	}

	s.mu.RLock()
	embed := s.embed
	s.mu.RUnlock()

	stored, err := lister.ListChunks(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	if len(stored) == 0 {
		return 0, nil
	}

	texts := make([]string, len(stored))
	for i, c := range stored {
		texts[i] = c.Text
	}
	vectors, err := embed.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("vectorize chunks: %w", err)
	}
	if len(vectors) != len(stored) {
		return 0, fmt.Errorf("got %d vectors for %d chunks: %w",
			len(vectors), len(stored), domain.ErrEmbeddingUnavailable)
	}

	// Group per document so replace-on-upsert keeps each doc's chunks
	// consistent.
	byDoc := make(map[string][]domain.EmbeddedChunk)
	order := make([]string, 0)
	for i, c := range stored {
		if _, seen := byDoc[c.DocumentID]; !seen {
			order = append(order, c.DocumentID)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], domain.EmbeddedChunk{Chunk: c.Chunk, Vector: vectors[i]})
	}
	for _, docID := range order {
		if err := s.repo.Upsert(ctx, namespace, byDoc[docID]); err != nil {
			return 0, fmt.Errorf("store document %s: %w", docID, err)
		}
	}

	s.cache.InvalidateNamespace(namespace)
	s.logger.Info("namespace reindexed",
		zap.String("namespace", namespace),
		zap.Int("chunks", len(stored)),
		zap.String("model", embed.Model()))

	return len(stored), nil
}
