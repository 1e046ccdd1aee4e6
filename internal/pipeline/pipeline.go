// Package pipeline is the public search entry point: it prepares the
// query (identifier extraction, routing, embedding), runs the retrieval
// engine, and post-processes the ranking (optional rerank, file-level
// aggregation, score-gap truncation).
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/codeatlas/internal/core"
	"github.com/Aman-CERP/codeatlas/internal/embed"
	atlaserr "github.com/Aman-CERP/codeatlas/internal/errors"
	"github.com/Aman-CERP/codeatlas/internal/query"
	"github.com/Aman-CERP/codeatlas/internal/retrieval"
	"github.com/Aman-CERP/codeatlas/internal/store"
)

// Pool sizing.
const (
	// DefaultRerankPoolSize is the candidate pool handed to a reranker.
	DefaultRerankPoolSize = 50

	// MaxRerankPoolSize caps the rerank pool.
	MaxRerankPoolSize = 100

	// retrievalPoolMultiplier widens the engine pool beyond the final
	// limit so file dedup and reranking still have enough candidates.
	retrievalPoolMultiplier = 5
)

// Options configures one public search call.
type Options struct {
	// Limit is the maximum number of results (default 10).
	Limit int

	// Language restricts results to one source language.
	Language string

	// PathPrefix restricts results to files under this relative prefix.
	PathPrefix string

	// RerankPoolSize is the candidate count handed to the reranker
	// (default 50, capped at 100).
	RerankPoolSize int

	// DedupeByFile keeps only the best symbol per file in the main
	// result list (default true via NewOptions).
	DedupeByFile bool

	// DisableGraph turns off graph expansion for this call.
	DisableGraph bool
}

// NewOptions returns default search options.
func NewOptions() Options {
	return Options{
		Limit:          retrieval.DefaultLimit,
		RerankPoolSize: DefaultRerankPoolSize,
		DedupeByFile:   true,
	}
}

// Config holds the pipeline's tuning knobs.
type Config struct {
	GapRatio    float64
	MinKeep     int
	GraphDepth  int
	GraphFanout int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		GapRatio:    DefaultGapRatio,
		MinKeep:     DefaultMinKeep,
		GraphDepth:  retrieval.DefaultGraphDepth,
		GraphFanout: retrieval.DefaultGraphFanout,
	}
}

// Response is a search answer: the ranked results plus the per-file
// aggregation the callers use for outlines.
type Response struct {
	Results []retrieval.SearchResult
	Files   []FileGroup
}

// Pipeline orchestrates query preparation, the fusion engine, and
// result post-processing. It is the single surface the CLI, SDK, and
// MCP server call.
type Pipeline struct {
	engine   *retrieval.Engine
	embedder embed.Embedder // may be nil: lexical-only search
	reranker Reranker       // may be nil: no reranking
	config   Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEmbedder supplies the embedding capability for the vector signal.
func WithEmbedder(e embed.Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// WithReranker supplies a reranker applied to the top pool (fail-open).
func WithReranker(r Reranker) Option {
	return func(p *Pipeline) { p.reranker = r }
}

// WithConfig overrides the default tuning knobs.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.config = cfg }
}

// New creates a search pipeline over the storage facade.
func New(storage store.Facade, opts ...Option) (*Pipeline, error) {
	engine, err := retrieval.NewEngine(storage)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{engine: engine, config: DefaultConfig()}
	for _, opt := range opts {
		opt(p)
	}
	if p.config.GapRatio <= 0 || p.config.GapRatio >= 1 {
		p.config.GapRatio = DefaultGapRatio
	}
	if p.config.MinKeep <= 0 {
		p.config.MinKeep = DefaultMinKeep
	}
	return p, nil
}

// Search runs the full retrieval pipeline for user text.
//
// Empty text is InvalidQuery. Engine-level StorageUnavailable
// propagates; embedding and reranking failures degrade silently to
// lexical-only search and pre-rerank order respectively.
func (p *Pipeline) Search(ctx context.Context, text string, opts Options) (*Response, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, atlaserr.InvalidQuery("query text is empty")
	}

	if opts.Limit <= 0 {
		opts.Limit = retrieval.DefaultLimit
	}
	if opts.RerankPoolSize <= 0 {
		opts.RerankPoolSize = DefaultRerankPoolSize
	}
	if opts.RerankPoolSize > MaxRerankPoolSize {
		opts.RerankPoolSize = MaxRerankPoolSize
	}

	q := query.Prepare(ctx, trimmed, p.embedder)
	q.LanguageFilter = core.NormalizeLanguage(opts.Language)
	q.PathFilter = opts.PathPrefix
	q.GraphDepth = p.config.GraphDepth
	q.GraphFanout = p.config.GraphFanout
	if opts.DisableGraph {
		q.EnableGraphExpansion = false
	}

	// Widen the engine pool so dedup and reranking have candidates to
	// work with; the engine caps at its own maximum.
	q.Limit = opts.Limit * retrievalPoolMultiplier
	if q.Limit < opts.RerankPoolSize {
		q.Limit = opts.RerankPoolSize
	}
	if q.Limit > retrieval.MaxLimit {
		q.Limit = retrieval.MaxLimit
	}

	results, err := p.engine.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	results = p.rerank(ctx, trimmed, results, opts.RerankPoolSize)

	groups := AggregateByFile(results)
	groups = applyScoreGapGroups(groups, p.config.GapRatio, p.config.MinKeep)

	final := results
	if opts.DedupeByFile {
		final = make([]retrieval.SearchResult, 0, len(groups))
		for _, g := range groups {
			final = append(final, g.Best)
		}
	} else {
		final = ApplyScoreGap(final, p.config.GapRatio, p.config.MinKeep)
	}

	if len(final) > opts.Limit {
		final = final[:opts.Limit]
	}
	if len(groups) > opts.Limit {
		groups = groups[:opts.Limit]
	}

	return &Response{Results: final, Files: groups}, nil
}

// rerank applies the optional reranker to the top pool. Failure falls
// back to the pre-rerank order with a warning (fail-open).
func (p *Pipeline) rerank(ctx context.Context, text string, results []retrieval.SearchResult, poolSize int) []retrieval.SearchResult {
	if p.reranker == nil || len(results) < 2 {
		return results
	}

	pool := results
	if len(pool) > poolSize {
		pool = pool[:poolSize]
	}

	reranked, err := p.reranker.Rerank(ctx, text, pool, 0)
	if err != nil {
		slog.Warn("reranker failed, using pre-rerank order",
			slog.String("error", err.Error()))
		return results
	}

	// The reranker returns a reordered subset of the pool; anything
	// beyond the pool keeps its engine order behind the reranked head.
	if len(results) > len(pool) {
		reranked = append(reranked, results[len(pool):]...)
	}
	return reranked
}
