package query

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/codeatlas/internal/embed"
	"github.com/Aman-CERP/codeatlas/internal/retrieval"
)

// Prepare builds an engine-ready SearchQuery from user text.
//
// Routing:
//   - BM25Text: extracted identifiers and widened fragments joined by
//     spaces, followed by the original text.
//   - ExactQueries: the verbatim extracted identifiers.
//   - QueryVector: an embedding of the original text when an embedder
//     is available; embedding failure degrades to lexical-only search
//     with a warning (fail-open).
//   - Text: the original user text, kept for provenance and as the
//     BM25 fallback.
func Prepare(ctx context.Context, text string, embedder embed.Embedder) retrieval.SearchQuery {
	q := retrieval.NewSearchQuery(text)

	extracted := ExtractIdentifiers(text)
	q.ExactQueries = extracted.Exact

	if terms := bm25Terms(extracted); len(terms) > 0 {
		q.BM25Text = strings.Join(terms, " ") + " " + text
	}

	if embedder != nil {
		vector, err := embedder.Embed(ctx, text)
		if err != nil {
			slog.Warn("query embedding failed, vector signal disabled",
				slog.String("error", err.Error()))
		} else {
			q.QueryVector = vector
		}
	}

	// Identifier-heavy queries lean on the lexical signals; the boost
	// mirrors the rule-based signal weighting of the search service.
	if isIdentifierQuery(text, extracted) {
		q.BM25Weight = 2.0
		q.ExactWeight = 2.5
	}

	return q
}

// bm25Terms merges exact identifiers and widened fragments, preserving
// discovery order and dropping duplicates.
func bm25Terms(ex Extracted) []string {
	seen := map[string]struct{}{}
	terms := make([]string, 0, len(ex.Exact)+len(ex.Widened))
	for _, t := range ex.Exact {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	for _, t := range ex.Widened {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// isIdentifierQuery reports whether the query is a bare symbol lookup:
// a single token that extracted as an identifier.
func isIdentifierQuery(text string, ex Extracted) bool {
	fields := strings.Fields(strings.TrimSpace(text))
	return len(fields) == 1 && len(ex.Exact) > 0
}
