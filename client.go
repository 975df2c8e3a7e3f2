// Package agentkit is the embedded SDK for the document retrieval engine:
// chunked ingestion, semantic retrieval with citations, and hybrid
// document+web answers, over an in-process or Redis-backed vector store.
package agentkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aramb-dev/agentkit/internal/cache"
	"github.com/aramb-dev/agentkit/internal/chunker"
	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/store"
	memstore "github.com/aramb-dev/agentkit/internal/store/memory"
	redisstore "github.com/aramb-dev/agentkit/internal/store/redis"
	"github.com/aramb-dev/agentkit/internal/transport/tavily"
	hybriduc "github.com/aramb-dev/agentkit/internal/usecase/hybrid"
	ingestuc "github.com/aramb-dev/agentkit/internal/usecase/ingest"
	retrieveuc "github.com/aramb-dev/agentkit/internal/usecase/retrieve"
)

const defaultReadinessTimeout = 10 * time.Second

// Chunk is one retrieved result entry.
type Chunk = domain.RetrievedChunk

// WebResult is one web search hit.
type WebResult = domain.WebResult

// Embedder vectorizes text batches.
type Embedder = domain.Embedder

// WebSearcher queries an external web search provider.
type WebSearcher = domain.WebSearcher

// NamespaceInfo describes one namespace.
type NamespaceInfo = domain.NamespaceInfo

// DocumentInfo describes one stored document.
type DocumentInfo = domain.DocumentInfo

// IngestResult reports what an Ingest call produced.
type IngestResult = ingestuc.Result

// Client is the agentkit SDK entry point.
type Client struct {
	store    store.Store
	closer   func()
	ingest   *ingestuc.Service
	retrieve *retrieveuc.Service
	hybrid   *hybriduc.Service
}

// New creates a Client. An embedder is required; everything else defaults to
// an in-process store, 900/150 chunking, a 100-entry cache, and k=5.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		chunkSize:     chunker.DefaultSize,
		chunkOverlap:  chunker.DefaultOverlap,
		cacheCapacity: cache.DefaultCapacity,
		cacheEnabled:  true,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.embedder == nil {
		return nil, errors.New("agentkit: embedder required (use WithEmbedder)")
	}
	chunking := chunker.Config{Size: cfg.chunkSize, Overlap: cfg.chunkOverlap}
	if err := chunking.Validate(); err != nil {
		return nil, fmt.Errorf("agentkit: %w", err)
	}

	var (
		vectors store.Store
		closer  = func() {}
	)
	if len(cfg.redisAddrs) > 0 {
		rs, err := redisstore.NewStore(redisstore.Config{
			Addrs:     cfg.redisAddrs,
			Password:  cfg.redisPassword,
			KeyPrefix: cfg.keyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("agentkit: create redis store: %w", err)
		}
		if err := rs.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			rs.Close()
			return nil, fmt.Errorf("agentkit: redis not ready: %w", err)
		}
		vectors = rs
		closer = rs.Close
	} else {
		vectors = memstore.NewStore()
	}

	web := cfg.web
	if web == nil {
		web = tavily.Disabled{}
	}

	queryCache := cache.New(cfg.cacheCapacity, cfg.cacheEnabled, nil)

	ingestSvc := ingestuc.New(vectors, cfg.embedder, queryCache, chunking, cfg.logger)
	retrieveSvc := retrieveuc.New(vectors, cfg.embedder, queryCache, cfg.defaultK, cfg.queryTimeout, cfg.logger)
	hybridSvc := hybriduc.New(retrieveSvc, web, cfg.webTimeout, cfg.logger)

	return &Client{
		store:    vectors,
		closer:   closer,
		ingest:   ingestSvc,
		retrieve: retrieveSvc,
		hybrid:   hybridSvc,
	}, nil
}

// Close releases store resources.
func (c *Client) Close() {
	c.closer()
}

// Ingest chunks, embeds, and stores a document in the namespace. Returns the
// document ID (generated unless set via IngestDoc) and chunk count.
func (c *Client) Ingest(ctx context.Context, namespace, text, filename string) (IngestResult, error) {
	return c.ingest.Ingest(ctx, ingestuc.Request{
		Text:           text,
		Namespace:      namespace,
		SourceFilename: filename,
	})
}

// IngestDoc is Ingest with an explicit document ID; re-ingesting replaces the
// previous version.
func (c *Client) IngestDoc(ctx context.Context, namespace, documentID, text, filename string) (IngestResult, error) {
	return c.ingest.Ingest(ctx, ingestuc.Request{
		Text:           text,
		Namespace:      namespace,
		SourceFilename: filename,
		DocumentID:     documentID,
	})
}

// Retrieve answers a query with formatted excerpts and citations. Never
// fails; degraded states come back as explanatory text.
func (c *Client) Retrieve(ctx context.Context, namespace, query string, k int) string {
	return c.retrieve.Retrieve(ctx, namespace, query, k)
}

// RetrieveChunks returns scored chunks in descending relevance order.
// useCache false forces a fresh store read, skipping the query cache.
func (c *Client) RetrieveChunks(ctx context.Context, namespace, query string, k int, useCache bool) ([]Chunk, error) {
	return c.retrieve.RetrieveChunks(ctx, namespace, query, k, useCache)
}

// HybridRetrieve fuses document retrieval with web search into one sectioned
// answer. Requires WithWebSearcher for a live web section.
func (c *Client) HybridRetrieve(ctx context.Context, namespace, query string, k int) string {
	return c.hybrid.Retrieve(ctx, namespace, query, k)
}

// DeleteDocument removes a document's chunks and returns how many were removed.
func (c *Client) DeleteDocument(ctx context.Context, namespace, documentID string) (int, error) {
	return c.ingest.DeleteDocument(ctx, namespace, documentID)
}

// DeleteNamespace removes a namespace and everything under it.
func (c *Client) DeleteNamespace(ctx context.Context, namespace string) error {
	return c.ingest.DeleteNamespace(ctx, namespace)
}

// ListNamespaces returns all namespaces with document and chunk counts.
func (c *Client) ListNamespaces(ctx context.Context) ([]NamespaceInfo, error) {
	return c.ingest.ListNamespaces(ctx)
}

// ListDocuments returns the documents stored in a namespace.
func (c *Client) ListDocuments(ctx context.Context, namespace string) ([]DocumentInfo, error) {
	return c.ingest.ListDocuments(ctx, namespace)
}
