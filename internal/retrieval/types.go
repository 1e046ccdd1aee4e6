// Package retrieval implements the multi-signal search engine: BM25
// full-text, vector kNN, exact name match, and graph expansion, fused
// with Reciprocal Rank Fusion (RRF) into one deterministic ranking.
package retrieval

import (
	"github.com/Aman-CERP/codeatlas/internal/core"
)

// Signal tags in their canonical order. Fused scores accumulate in this
// sequence so floating-point summation is bit-reproducible.
const (
	SignalBM25   = "bm25"
	SignalVector = "vector"
	SignalExact  = "exact"
	SignalGraph  = "graph"
)

// Engine limits and defaults.
const (
	// MaxLimit caps the number of final results per query.
	MaxLimit = 100

	// MaxGraphDepth caps k-hop traversal depth.
	MaxGraphDepth = 5

	// DefaultLimit is the default result count.
	DefaultLimit = 10

	// DefaultGraphDepth is the default k-hop expansion depth.
	DefaultGraphDepth = 2

	// DefaultGraphFanout bounds neighbors expanded per node.
	DefaultGraphFanout = 50

	// DefaultBM25PoolSize is the BM25 candidate pool before fusion.
	DefaultBM25PoolSize = 100

	// DefaultExactMatchPoolSize is the exact-match candidate pool.
	DefaultExactMatchPoolSize = 50

	// DefaultVectorPoolSize is the vector kNN candidate pool.
	DefaultVectorPoolSize = 50
)

// SearchQuery is the engine-facing request.
type SearchQuery struct {
	// Text is the raw query text; may be natural language.
	Text string

	// BM25Text overrides Text for the BM25 signal when non-empty.
	BM25Text string

	// ExactQueries holds explicit identifier strings for the
	// exact-match signal. When empty the signal is skipped entirely;
	// the collector is never run against raw natural-language Text.
	ExactQueries []string

	// QueryVector is a dense embedding of the query. When nil the
	// vector signal is skipped.
	QueryVector []float32

	// Limit is the requested number of final results (capped at 100).
	Limit int

	// LanguageFilter restricts results to one source language.
	LanguageFilter core.Language

	// PathFilter restricts results to files under this relative prefix.
	PathFilter string

	// EnableGraphExpansion turns k-hop expansion on (default true).
	EnableGraphExpansion bool

	// GraphDepth is the k-hop depth, clamped to [0, 5].
	GraphDepth int

	// GraphFanout bounds neighbors expanded per node.
	GraphFanout int

	// Per-signal candidate pool sizes.
	BM25PoolSize       int
	ExactMatchPoolSize int
	VectorPoolSize     int

	// Per-signal weight multipliers for RRF contributions. The
	// defaults of 1.0 reproduce plain RRF; the query preparation
	// layer may boost a signal for identifier-heavy queries.
	BM25Weight   float64
	VectorWeight float64
	ExactWeight  float64
	GraphWeight  float64
}

// NewSearchQuery returns a query for text with all defaults applied.
func NewSearchQuery(text string) SearchQuery {
	return SearchQuery{
		Text:                 text,
		Limit:                DefaultLimit,
		EnableGraphExpansion: true,
		GraphDepth:           DefaultGraphDepth,
		GraphFanout:          DefaultGraphFanout,
		BM25PoolSize:         DefaultBM25PoolSize,
		ExactMatchPoolSize:   DefaultExactMatchPoolSize,
		VectorPoolSize:       DefaultVectorPoolSize,
		BM25Weight:           1.0,
		VectorWeight:         1.0,
		ExactWeight:          1.0,
		GraphWeight:          1.0,
	}
}

// EffectiveBM25Text returns the BM25-specific text, falling back to Text.
func (q *SearchQuery) EffectiveBM25Text() string {
	if q.BM25Text != "" {
		return q.BM25Text
	}
	return q.Text
}

// normalized returns a copy with limits clamped and zero values
// replaced by defaults.
func (q SearchQuery) normalized() SearchQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.GraphDepth < 0 {
		q.GraphDepth = 0
	}
	if q.GraphDepth > MaxGraphDepth {
		q.GraphDepth = MaxGraphDepth
	}
	if q.GraphFanout <= 0 {
		q.GraphFanout = DefaultGraphFanout
	}
	if q.BM25PoolSize <= 0 {
		q.BM25PoolSize = DefaultBM25PoolSize
	}
	if q.ExactMatchPoolSize <= 0 {
		q.ExactMatchPoolSize = DefaultExactMatchPoolSize
	}
	if q.VectorPoolSize <= 0 {
		q.VectorPoolSize = DefaultVectorPoolSize
	}
	if q.BM25Weight <= 0 {
		q.BM25Weight = 1.0
	}
	if q.VectorWeight <= 0 {
		q.VectorWeight = 1.0
	}
	if q.ExactWeight <= 0 {
		q.ExactWeight = 1.0
	}
	if q.GraphWeight <= 0 {
		q.GraphWeight = 1.0
	}
	return q
}

// RelatedSymbol is a graph neighbor attached to a direct hit.
type RelatedSymbol struct {
	ID            core.SymbolID
	Name          string
	QualifiedName string
	Kind          core.Kind
	FilePath      string
	StartLine     int
	EndLine       int
	HopDistance   int
}

// SearchResult is a single ranked hit with provenance.
type SearchResult struct {
	ID            core.SymbolID
	Name          string
	QualifiedName string // language-native display form
	Kind          core.Kind
	Language      core.Language
	FilePath      string
	StartLine     int
	EndLine       int

	// Score is the fused RRF score.
	Score float64

	// MatchSignals lists the signals that contributed rank to this
	// result, in canonical order. Never empty on a returned result.
	MatchSignals []string

	// RelatedSymbols holds k-hop graph neighbors. Populated only for
	// results that entered the working set via a non-graph signal and
	// only when graph expansion is enabled.
	RelatedSymbols []RelatedSymbol

	// Snippet carries up to the first lines of the symbol's doc text,
	// or its signature when no doc exists.
	Snippet string
}
