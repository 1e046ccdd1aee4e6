package pipeline

import (
	"context"

	"github.com/Aman-CERP/codeatlas/internal/retrieval"
)

// Reranker reorders a candidate pool by relevance to the query text.
// Cross-encoder implementations score query-result pairs jointly, which
// beats bi-encoder retrieval scores at higher latency cost.
type Reranker interface {
	// Rerank returns a re-ordered subset of results, best first.
	// topK limits the returned count; 0 returns all.
	Rerank(ctx context.Context, query string, results []retrieval.SearchResult, topK int) ([]retrieval.SearchResult, error)

	// Close releases resources.
	Close() error
}

// NoopReranker returns results unchanged. Used when reranking is
// disabled; keeps the pipeline code free of nil checks at call sites
// that want an always-present reranker.
type NoopReranker struct{}

var _ Reranker = (*NoopReranker)(nil)

// Rerank returns results in their original order.
func (n *NoopReranker) Rerank(_ context.Context, _ string, results []retrieval.SearchResult, topK int) ([]retrieval.SearchResult, error) {
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Close is a no-op.
func (n *NoopReranker) Close() error { return nil }
