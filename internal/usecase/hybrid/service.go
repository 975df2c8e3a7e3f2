// Package hybrid fuses document retrieval with live web search into one
// attributed answer context.
package hybrid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aramb-dev/agentkit/internal/domain"
	"github.com/aramb-dev/agentkit/internal/metrics"
	"github.com/aramb-dev/agentkit/internal/usecase/retrieve"
)

// DefaultWebTimeout bounds the web sub-path. The document path keeps its own
// budget; a slow provider must never stall the fused answer past this.
const DefaultWebTimeout = 10 * time.Second

// Service runs the document and web sub-queries concurrently and merges the
// outcomes. Either source may fail without taking the other down.
type Service struct {
	docs       DocumentRetriever
	web        domain.WebSearcher
	webTimeout time.Duration
	logger     *zap.Logger
}

// New creates a hybrid fusion service.
func New(docs DocumentRetriever, web domain.WebSearcher, webTimeout time.Duration, logger *zap.Logger) *Service {
	if webTimeout <= 0 {
		webTimeout = DefaultWebTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{docs: docs, web: web, webTimeout: webTimeout, logger: logger}
}

// Retrieve fans out to both sources and returns the fused, sectioned text.
// Never fails: a dead source becomes an unavailability note in its section.
func (s *Service) Retrieve(ctx context.Context, namespace, query string, k int) string {
	enhanced := EnhanceQuery(query)

	var (
		docResults []domain.RetrievedChunk
		docErr     error
		webResults []domain.WebResult
		webErr     error
	)

	// Sub-path failures are folded into the output, so the group never
	// carries an error and neither branch cancels the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docResults, docErr = s.docs.RetrieveChunks(gctx, namespace, enhanced, k, true)
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		wctx, cancel := context.WithTimeout(gctx, s.webTimeout)
		defer cancel()
		webResults, webErr = s.web.Search(wctx, enhanced)
		metrics.QueryDuration.WithLabelValues("web").Observe(time.Since(start).Seconds())
		return nil
	})
	_ = g.Wait()

	if docErr != nil {
		s.logger.Warn("hybrid document path failed", zap.Error(docErr))
	}
	if webErr != nil {
		s.logger.Warn("hybrid web path failed", zap.Error(webErr))
	}

	var b strings.Builder
	b.WriteString("=== Document results ===\n")
	switch {
	case docErr != nil:
		b.WriteString("Document results unavailable.\n")
	case len(docResults) == 0:
		fmt.Fprintf(&b, "No relevant documents found for %q in namespace %q.\n", query, namespace)
	default:
		b.WriteString(retrieve.FormatResults(docResults))
		b.WriteString("\n")
	}

	b.WriteString("\n=== Web results ===\n")
	switch {
	case webErr != nil:
		b.WriteString("Web results unavailable.\n")
	case len(webResults) == 0:
		b.WriteString("No web results found.\n")
	default:
		for i, r := range webResults {
			fmt.Fprintf(&b, "[W%d] %s\n%s\nSource: %s\n", i+1, r.Title, r.Snippet, r.URL)
			if i < len(webResults)-1 {
				b.WriteString("\n")
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// fillerWords are stripped by query enhancement. Kept short on purpose:
// aggressive stopword removal hurts short queries more than it helps long ones.
var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"is": {}, "are": {}, "was": {}, "were": {},
	"please": {}, "kindly": {},
	"tell": {}, "me": {}, "about": {},
	"what": {}, "which": {}, "how": {}, "does": {}, "do": {},
	"can": {}, "you": {}, "could": {},
}

// EnhanceQuery strips low-information filler tokens before embedding. Pure
// transform; a query that reduces to nothing is returned unchanged.
func EnhanceQuery(query string) string {
	fields := strings.Fields(query)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, filler := fillerWords[strings.ToLower(f)]; !filler {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(query)
	}
	return strings.Join(kept, " ")
}
