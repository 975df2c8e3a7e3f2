// Package retrieve implements the query path: cache lookup, query
// vectorization, nearest-neighbor search, relevance scoring, and citation
// formatting.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/cache"
	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/metrics"
)

const (
	// DefaultK is how many chunks a query returns unless asked otherwise.
	DefaultK = 5

	// DefaultQueryTimeout bounds a single retrieval end to end, embedding
	// included.
	DefaultQueryTimeout = 30 * time.Second
)

// Service orchestrates retrieval over the vector store.
type Service struct {
	store  Searcher
	cache  ResultCache
	logger *zap.Logger

	mu           sync.RWMutex
	embed        domain.Embedder
	defaultK     int
	queryTimeout time.Duration

	queries   atomic.Int64
	failures  atomic.Int64
	latencyNS atomic.Int64
}

// New creates a retrieval service. Zero defaultK and queryTimeout fall back to
// the package defaults.
func New(store Searcher, embed domain.Embedder, c ResultCache, defaultK int, queryTimeout time.Duration, logger *zap.Logger) *Service {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		cache:        c,
		embed:        embed,
		defaultK:     defaultK,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// RetrieveChunks runs the full query pipeline and returns scored chunks in
// descending relevance order with 1-based citation indices. k <= 0 uses the
// configured default. useCache false bypasses the cache in both directions:
// no lookup and no insert, for callers that need fresh store reads.
func (s *Service) RetrieveChunks(ctx context.Context, namespace, query string, k int, useCache bool) ([]domain.RetrievedChunk, error) {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty: %w", domain.ErrInvalidArgument)
	}

	s.mu.RLock()
	embed := s.embed
	timeout := s.queryTimeout
	if k <= 0 {
		k = s.defaultK
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	s.queries.Add(1)

	key := cache.NewKey(namespace, query, k)
	if useCache {
		if results, ok := s.cache.Get(key); ok {
			s.observe(start, results)
			return results, nil
		}
	}

	vector, err := domain.EmbedOne(ctx, embed, query)
	if err != nil {
		s.failures.Add(1)
		metrics.QueriesTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	scored, err := s.store.KNN(ctx, namespace, vector, k)
	if err != nil {
		s.failures.Add(1)
		metrics.QueriesTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("search: %v: %w", err, domain.ErrRetrievalUnavailable)
	}

	results := scoreAndRank(scored)
	if useCache {
		s.cache.Put(key, results)
	}
	s.observe(start, results)
	return results, nil
}

// Retrieve answers a query with formatted excerpts and a citation block. It
// never fails: degraded states come back as explanatory text so the caller can
// pass the answer straight through.
func (s *Service) Retrieve(ctx context.Context, namespace, query string, k int) string {
	results, err := s.RetrieveChunks(ctx, namespace, query, k, true)
	return s.FormatAnswer(ctx, namespace, query, results, err)
}

// FormatAnswer renders a retrieval outcome as caller-facing text: formatted
// excerpts with citations, or the degraded/empty-state message for the given
// error. Lets transports that already hold the chunks format them without
// running the pipeline a second time.
func (s *Service) FormatAnswer(ctx context.Context, namespace, query string, results []domain.RetrievedChunk, err error) string {
	if err != nil {
		s.logger.Warn("retrieval degraded",
			zap.String("namespace", namespace),
			zap.Error(err))
		switch {
		case errors.Is(err, domain.ErrEmbeddingUnavailable):
			return "Document retrieval is temporarily unavailable: the embedding service is not responding. Please try again later."
		case errors.Is(err, domain.ErrRetrievalUnavailable):
			return "Document retrieval is temporarily unavailable: the document store is not responding. Please try again later."
		default:
			return fmt.Sprintf("Document retrieval failed: %v", err)
		}
	}
	if len(results) == 0 {
		if !s.namespaceExists(ctx, namespace) {
			return fmt.Sprintf("Namespace %q has no documents. Ingest documents before querying.", namespace)
		}
		return fmt.Sprintf("No relevant documents found for %q in namespace %q.", query, namespace)
	}
	return FormatResults(results)
}

// namespaceExists reports whether the namespace holds at least one chunk. A
// lookup failure counts as existing so the caller keeps the softer message.
func (s *Service) namespaceExists(ctx context.Context, namespace string) bool {
	infos, err := s.store.ListNamespaces(ctx)
	if err != nil {
		return true
	}
	for _, info := range infos {
		if info.Name == namespace && info.ChunkCount > 0 {
			return true
		}
	}
	return false
}

// scoreAndRank converts raw distances to relevance scores, fixes the order,
// and assigns citation indices. The store already sorts, but ranking is this
// layer's contract, so it is enforced here too.
func scoreAndRank(scored []domain.ScoredChunk) []domain.RetrievedChunk {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		if scored[i].DocumentID != scored[j].DocumentID {
			return scored[i].DocumentID < scored[j].DocumentID
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})

	results := make([]domain.RetrievedChunk, len(scored))
	for i, sc := range scored {
		results[i] = domain.RetrievedChunk{
			Chunk:         sc.Chunk,
			Distance:      sc.Distance,
			Relevance:     domain.Relevance(sc.Distance),
			CitationIndex: i + 1,
		}
	}
	return results
}

// FormatResults renders retrieved chunks as numbered excerpts followed by a
// citation list with source filenames and relevance percentages.
func FormatResults(results []domain.RetrievedChunk) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", r.CitationIndex, r.Text)
	}

	b.WriteString("\n\nCitations:\n")
	for _, r := range results {
		source := r.SourceFilename
		if source == "" {
			source = r.DocumentID
		}
		fmt.Fprintf(&b, "[%d] %s (chunk %d, relevance: %.1f%%)\n",
			r.CitationIndex, source, r.ChunkIndex, r.Relevance*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SetEmbedder swaps the embedding model. All cached results are dropped: they
// were scored in the old model's vector space.
func (s *Service) SetEmbedder(embed domain.Embedder) {
	s.mu.Lock()
	old := s.embed
	s.embed = embed
	s.mu.Unlock()

	s.cache.Clear()
	s.logger.Info("embedding model switched",
		zap.String("from", old.Model()),
		zap.String("to", embed.Model()))
}

// EmbeddingModel returns the active embedding model identifier.
func (s *Service) EmbeddingModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embed.Model()
}

// SetDefaultK updates how many chunks queries return by default.
func (s *Service) SetDefaultK(k int) error {
	if k <= 0 {
		return fmt.Errorf("default k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	s.defaultK = k
	s.mu.Unlock()
	return nil
}

// DefaultKValue returns the configured default result count.
func (s *Service) DefaultKValue() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultK
}

// ClearCache drops all cached query results.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// CacheStats reports the query cache state.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// PerformanceStats aggregates runtime statistics for the admin surface.
type PerformanceStats struct {
	EmbeddingModel string        `json:"embedding_model"`
	DefaultK       int           `json:"default_k"`
	QueryTimeout   time.Duration `json:"query_timeout"`
	Queries        int64         `json:"queries"`
	Failures       int64         `json:"failures"`
	AvgLatency     time.Duration `json:"avg_latency"`
	Cache          cache.Stats   `json:"cache_stats"`
	Namespaces     []string      `json:"namespaces"`
}

// Stats returns a snapshot of query counters, cache state, and namespaces.
func (s *Service) Stats(ctx context.Context) (PerformanceStats, error) {
	infos, err := s.store.ListNamespaces(ctx)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("list namespaces: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}

	queries := s.queries.Load()
	var avg time.Duration
	if queries > 0 {
		avg = time.Duration(s.latencyNS.Load() / queries)
	}

	s.mu.RLock()
	model := s.embed.Model()
	defaultK := s.defaultK
	timeout := s.queryTimeout
	s.mu.RUnlock()

	return PerformanceStats{
		EmbeddingModel: model,
		DefaultK:       defaultK,
		QueryTimeout:   timeout,
		Queries:        queries,
		Failures:       s.failures.Load(),
		AvgLatency:     avg,
		Cache:          s.cache.Stats(),
		Namespaces:     names,
	}, nil
}

func (s *Service) observe(start time.Time, results []domain.RetrievedChunk) {
	elapsed := time.Since(start)
	s.latencyNS.Add(int64(elapsed))
	metrics.QueryDuration.WithLabelValues("documents").Observe(elapsed.Seconds())
	if len(results) == 0 {
		metrics.QueriesTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.QueriesTotal.WithLabelValues("results").Inc()
	}
}
