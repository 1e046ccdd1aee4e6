// Package store is the persistence layer for indexed symbols: a SQLite
// symbol/relation graph, a Bleve BM25 full-text index, and an HNSW
// vector store. The retrieval engine consumes the read-only Facade;
// the indexing subsystem uses the write methods behind an exclusive lock.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/codeatlas/internal/core"
)

// ErrUnavailable indicates a backend cannot serve reads right now
// (closed handle, missing index files, rewrite in progress). The
// retrieval engine treats it as a graceful-degradation condition.
var ErrUnavailable = errors.New("store unavailable")

// DimensionMismatchError indicates a query vector with the wrong dimension.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index has %d dimensions, query has %d", e.Expected, e.Got)
}

// TraversalDirection selects which edges a k-hop traversal follows.
type TraversalDirection int

const (
	DirectionOutgoing TraversalDirection = iota
	DirectionIncoming
	DirectionBoth
)

// Hit is a rank-ordered candidate from a signal backend.
// Rank is 1-indexed; rank 1 is the best hit.
type Hit struct {
	ID   core.SymbolID
	Rank int
}

// TraversalHit is a symbol discovered by k-hop graph traversal.
type TraversalHit struct {
	ID           core.SymbolID
	HopDistance  int
	RelationKind core.RelationKind
}

// Filters restricts search results by symbol metadata.
// Zero values mean "no restriction".
type Filters struct {
	// Language restricts to one normalized source language tag.
	Language core.Language
	// PathPrefix restricts to files whose relative path starts with it.
	PathPrefix string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.Language == "" && f.PathPrefix == ""
}

// Match reports whether a symbol passes the filters.
func (f Filters) Match(sym *core.Symbol) bool {
	if f.Language != "" && sym.Language != f.Language {
		return false
	}
	if f.PathPrefix != "" && !hasPathPrefix(sym.FilePath, f.PathPrefix) {
		return false
	}
	return true
}

func hasPathPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// Facade is the read contract the retrieval engine consumes.
// Each capability may fail independently; a failing capability returns
// an error rather than panicking, and the engine degrades around it.
type Facade interface {
	// SearchBM25 runs full-text BM25 over the symbol corpus.
	// The text is parsed permissively: punctuation and operator
	// characters are token separators, never syntax.
	SearchBM25(ctx context.Context, text string, poolSize int, filters Filters) ([]Hit, error)

	// SearchKNN runs approximate nearest-neighbor search.
	// Returns DimensionMismatchError when the vector has the wrong size.
	SearchKNN(ctx context.Context, vector []float32, k int, filters Filters) ([]Hit, error)

	// FindByName returns symbols whose short name equals name exactly.
	FindByName(ctx context.Context, name string) ([]core.SymbolID, error)

	// FindByQualifiedName returns symbols whose qualified name equals qn
	// in either canonical dot form or language-native form.
	FindByQualifiedName(ctx context.Context, qn string) ([]core.SymbolID, error)

	// TraverseKHop walks the relation graph breadth-first from start,
	// bounded by depth and per-node fanout, with cycle detection.
	// Results are ordered by (hop distance, SymbolID byte order).
	TraverseKHop(ctx context.Context, start core.SymbolID, depth, fanout int, direction TraversalDirection) ([]TraversalHit, error)

	// Hydrate resolves ids into full symbol records, preserving input
	// order and skipping ids no longer present in the index.
	Hydrate(ctx context.Context, ids []core.SymbolID) ([]*core.Symbol, error)
}

// Document is a symbol's searchable projection for the BM25 index.
type Document struct {
	ID       core.SymbolID
	Content  string // name, qualified name, signature, doc text
	Language core.Language
	FilePath string
}
