package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/codeatlas/internal/core"
	atlaserr "github.com/Aman-CERP/codeatlas/internal/errors"
	"github.com/Aman-CERP/codeatlas/internal/store"
)

// snippetMaxLines bounds the doc-text snippet attached to results.
const snippetMaxLines = 50

// Engine is the multi-signal retrieval engine. It is stateless per
// call and holds only a shared read handle to the storage facade, so
// concurrent Search calls from multiple goroutines are safe.
//
// Each call runs its signal collectors synchronously in canonical
// order; any parallelism belongs to the caller.
type Engine struct {
	storage store.Facade
}

// NewEngine creates a retrieval engine over the given storage facade.
func NewEngine(storage store.Facade) (*Engine, error) {
	if storage == nil {
		return nil, fmt.Errorf("retrieval: storage facade is required")
	}
	return &Engine{storage: storage}, nil
}

// Search executes all eligible signals, fuses their rankings with RRF,
// and returns the hydrated top results.
//
// Per-signal backend failures degrade gracefully: the failing signal is
// logged and skipped. The call errors only on a malformed query, on an
// internal invariant violation, or when every signal failed and nothing
// at all was found (storage unavailable).
func (e *Engine) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	q := query.normalized()

	text := strings.TrimSpace(q.Text)
	if text == "" && q.QueryVector == nil && len(q.ExactQueries) == 0 {
		return nil, atlaserr.InvalidQuery("query text is empty and no vector or exact queries were provided")
	}

	filters := store.Filters{Language: q.LanguageFilter, PathPrefix: q.PathFilter}
	candidates := newCandidateSet()
	signalErrors := 0

	// Signals run in canonical order: bm25, vector, exact, then graph.
	// The order fixes float accumulation, not just presentation.
	if !e.collectBM25(ctx, &q, filters, candidates) {
		signalErrors++
	}
	if !e.collectVector(ctx, &q, filters, candidates) {
		signalErrors++
	}
	if !e.collectExact(ctx, &q, filters, candidates) {
		signalErrors++
	}

	// Snapshot direct hits before expansion: only they get
	// related_symbols, and their scores must not change.
	directHits := make(map[core.SymbolID]bool, candidates.len())
	for _, id := range candidates.ids() {
		directHits[id] = true
	}

	if q.EnableGraphExpansion && q.GraphDepth > 0 && candidates.len() > 0 {
		e.expandGraph(ctx, &q, filters, candidates)
	}

	if candidates.len() == 0 {
		if signalErrors > 0 {
			return nil, atlaserr.StorageUnavailable(
				fmt.Sprintf("no candidates and %d signal(s) failed", signalErrors), nil)
		}
		return []SearchResult{}, nil
	}

	ranked := candidates.ranked()
	if len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}

	results, err := e.hydrate(ctx, ranked, filters)
	if err != nil {
		return nil, err
	}

	if q.EnableGraphExpansion && q.GraphDepth > 0 {
		e.attachRelatedSymbols(ctx, &q, directHits, results)
	}

	return results, nil
}

// collectBM25 runs the full-text signal. Returns false when the signal
// was eligible but its backend failed.
func (e *Engine) collectBM25(ctx context.Context, q *SearchQuery, filters store.Filters, candidates *candidateSet) bool {
	text := strings.TrimSpace(q.EffectiveBM25Text())
	if text == "" {
		return true // not eligible, not a failure
	}

	hits, err := e.storage.SearchBM25(ctx, text, q.BM25PoolSize, filters)
	if err != nil {
		slog.Warn("signal failed, skipping",
			slog.String("signal", SignalBM25),
			slog.String("error", err.Error()))
		return false
	}

	slog.Debug("signal collected",
		slog.String("signal", SignalBM25),
		slog.Int("count", len(hits)))

	for _, hit := range hits {
		candidates.add(hit.ID, hit.Rank, SignalBM25, q.BM25Weight)
	}
	return true
}

// collectVector runs the kNN signal. A dimension mismatch is treated
// like any other backend failure: logged and skipped.
func (e *Engine) collectVector(ctx context.Context, q *SearchQuery, filters store.Filters, candidates *candidateSet) bool {
	if q.QueryVector == nil {
		return true
	}

	hits, err := e.storage.SearchKNN(ctx, q.QueryVector, q.VectorPoolSize, filters)
	if err != nil {
		slog.Warn("signal failed, skipping",
			slog.String("signal", SignalVector),
			slog.String("error", err.Error()))
		return false
	}

	slog.Debug("signal collected",
		slog.String("signal", SignalVector),
		slog.Int("count", len(hits)))

	for _, hit := range hits {
		candidates.add(hit.ID, hit.Rank, SignalVector, q.VectorWeight)
	}
	return true
}

// exactCandidate tracks which lookup fields matched a symbol.
type exactCandidate struct {
	id          core.SymbolID
	byName      bool
	byQualified bool
}

func (c *exactCandidate) fieldCount() int {
	n := 0
	if c.byName {
		n++
	}
	if c.byQualified {
		n++
	}
	return n
}

// collectExact looks up each identifier in ExactQueries against symbol
// names and qualified names (canonical and native forms).
//
// The collector is skipped when ExactQueries is empty: exact equality
// against a long natural-language description can never match a symbol
// name, so it is never run with the raw query text.
func (e *Engine) collectExact(ctx context.Context, q *SearchQuery, filters store.Filters, candidates *candidateSet) bool {
	if len(q.ExactQueries) == 0 {
		return true
	}

	matches := map[core.SymbolID]*exactCandidate{}
	failed := 0
	lookups := 0

	record := func(ids []core.SymbolID, qualified bool) {
		for _, id := range ids {
			entry, ok := matches[id]
			if !ok {
				entry = &exactCandidate{id: id}
				matches[id] = entry
			}
			if qualified {
				entry.byQualified = true
			} else {
				entry.byName = true
			}
		}
	}

	for _, term := range q.ExactQueries {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		lookups++
		ids, err := e.storage.FindByName(ctx, term)
		if err != nil {
			slog.Warn("signal failed on name lookup, skipping term",
				slog.String("signal", SignalExact),
				slog.String("error", err.Error()))
			failed++
		} else {
			record(ids, false)
		}

		ids, err = e.storage.FindByQualifiedName(ctx, term)
		if err != nil {
			slog.Warn("signal failed on qualified name lookup, skipping term",
				slog.String("signal", SignalExact),
				slog.String("error", err.Error()))
			failed++
		} else {
			record(ids, true)
		}
	}

	if len(matches) == 0 {
		// The signal counts as failed only when lookups errored and
		// nothing was found at all.
		return failed == 0 || lookups == 0
	}

	// Hydrate to order by qualified-name length and to apply filters.
	ids := make([]core.SymbolID, 0, len(matches))
	for id := range matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	symbols, err := e.storage.Hydrate(ctx, ids)
	if err != nil {
		slog.Warn("signal failed on hydration, skipping",
			slog.String("signal", SignalExact),
			slog.String("error", err.Error()))
		return false
	}

	type orderedHit struct {
		cand *exactCandidate
		sym  *core.Symbol
	}
	hits := make([]orderedHit, 0, len(symbols))
	for _, sym := range symbols {
		if !filters.Match(sym) {
			continue
		}
		hits = append(hits, orderedHit{cand: matches[sym.ID], sym: sym})
	}

	// Order: more matching fields first, then shorter qualified name,
	// then SymbolID byte order.
	sort.Slice(hits, func(i, j int) bool {
		fi, fj := hits[i].cand.fieldCount(), hits[j].cand.fieldCount()
		if fi != fj {
			return fi > fj
		}
		li, lj := len(hits[i].sym.QualifiedName), len(hits[j].sym.QualifiedName)
		if li != lj {
			return li < lj
		}
		return hits[i].sym.ID.Less(hits[j].sym.ID)
	})

	if len(hits) > q.ExactMatchPoolSize {
		hits = hits[:q.ExactMatchPoolSize]
	}

	slog.Debug("signal collected",
		slog.String("signal", SignalExact),
		slog.Int("count", len(hits)))

	for rank, hit := range hits {
		candidates.add(hit.cand.id, rank+1, SignalExact, q.ExactWeight)
	}
	return true
}

// expandGraph traverses k hops out from every direct hit and scores
// newly discovered symbols by hop distance: a neighbor at hop h
// contributes 1/(h + k), so closer neighbors score higher regardless
// of which seed found them. Seeds keep their scores untouched.
func (e *Engine) expandGraph(ctx context.Context, q *SearchQuery, filters store.Filters, candidates *candidateSet) {
	seeds := candidates.ids()

	// Union of all traversals, keeping the minimum hop distance per
	// discovered symbol. Min-merge is order-independent, so iterating
	// seeds in sorted order is for reproducible backend access only.
	minHop := map[core.SymbolID]int{}
	for _, seed := range seeds {
		hits, err := e.storage.TraverseKHop(ctx, seed, q.GraphDepth, q.GraphFanout, store.DirectionBoth)
		if err != nil {
			slog.Warn("graph expansion failed for seed, skipping",
				slog.String("signal", SignalGraph),
				slog.String("seed", seed.String()),
				slog.String("error", err.Error()))
			continue
		}
		for _, hit := range hits {
			if candidates.contains(hit.ID) {
				continue // direct hits keep their own scores
			}
			if prev, ok := minHop[hit.ID]; !ok || hit.HopDistance < prev {
				minHop[hit.ID] = hit.HopDistance
			}
		}
	}

	if len(minHop) == 0 {
		return
	}

	// Hydrate discovered ids to apply language/path filters.
	discovered := make([]core.SymbolID, 0, len(minHop))
	for id := range minHop {
		discovered = append(discovered, id)
	}
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].Less(discovered[j]) })

	symbols, err := e.storage.Hydrate(ctx, discovered)
	if err != nil {
		slog.Warn("graph expansion hydration failed, skipping",
			slog.String("signal", SignalGraph),
			slog.String("error", err.Error()))
		return
	}

	count := 0
	for _, sym := range symbols {
		if !filters.Match(sym) {
			continue
		}
		candidates.add(sym.ID, minHop[sym.ID], SignalGraph, q.GraphWeight)
		count++
	}

	slog.Debug("signal collected",
		slog.String("signal", SignalGraph),
		slog.Int("count", count))
}

// hydrate resolves ranked candidates into full results. Symbols evicted
// between ranking and hydration are dropped; a symbol coming back that
// was never requested is an internal invariant violation.
func (e *Engine) hydrate(ctx context.Context, ranked []*candidate, filters store.Filters) ([]SearchResult, error) {
	ids := make([]core.SymbolID, len(ranked))
	byID := make(map[core.SymbolID]*candidate, len(ranked))
	for i, c := range ranked {
		ids[i] = c.id
		byID[c.id] = c
	}

	symbols, err := e.storage.Hydrate(ctx, ids)
	if err != nil {
		return nil, atlaserr.Internal("result hydration failed", err)
	}

	symByID := make(map[core.SymbolID]*core.Symbol, len(symbols))
	for _, sym := range symbols {
		if _, requested := byID[sym.ID]; !requested {
			return nil, atlaserr.Internal(
				fmt.Sprintf("hydration returned unrequested symbol %s", sym.ID), nil)
		}
		symByID[sym.ID] = sym
	}

	results := make([]SearchResult, 0, len(ranked))
	for _, c := range ranked {
		sym, ok := symByID[c.id]
		if !ok {
			continue // evicted since ranking
		}
		if !filters.Match(sym) {
			continue
		}
		results = append(results, SearchResult{
			ID:            sym.ID,
			Name:          sym.Name,
			QualifiedName: sym.DisplayName(),
			Kind:          sym.Kind,
			Language:      sym.Language,
			FilePath:      sym.FilePath,
			StartLine:     sym.StartLine,
			EndLine:       sym.EndLine,
			Score:         c.score,
			MatchSignals:  canonicalSignals(c.signals),
			Snippet:       buildSnippet(sym),
		})
	}

	return results, nil
}

// attachRelatedSymbols decorates direct hits with their k-hop
// neighborhood. Graph-only results stay undecorated: they are already
// someone else's neighbor.
func (e *Engine) attachRelatedSymbols(ctx context.Context, q *SearchQuery, directHits map[core.SymbolID]bool, results []SearchResult) {
	for i := range results {
		if !directHits[results[i].ID] {
			continue
		}

		hits, err := e.storage.TraverseKHop(ctx, results[i].ID, q.GraphDepth, q.GraphFanout, store.DirectionBoth)
		if err != nil {
			slog.Debug("related symbol traversal failed, leaving empty",
				slog.String("symbol", results[i].ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if len(hits) == 0 {
			continue
		}

		hopByID := make(map[core.SymbolID]int, len(hits))
		ids := make([]core.SymbolID, 0, len(hits))
		for _, hit := range hits {
			if hit.ID == results[i].ID {
				continue
			}
			if _, seen := hopByID[hit.ID]; !seen {
				hopByID[hit.ID] = hit.HopDistance
				ids = append(ids, hit.ID)
			}
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a].Less(ids[b]) })

		symbols, err := e.storage.Hydrate(ctx, ids)
		if err != nil {
			continue
		}

		related := make([]RelatedSymbol, 0, len(symbols))
		for _, sym := range symbols {
			related = append(related, RelatedSymbol{
				ID:            sym.ID,
				Name:          sym.Name,
				QualifiedName: sym.DisplayName(),
				Kind:          sym.Kind,
				FilePath:      sym.FilePath,
				StartLine:     sym.StartLine,
				EndLine:       sym.EndLine,
				HopDistance:   hopByID[sym.ID],
			})
		}

		// Closest neighbors first, SymbolID order within a hop.
		sort.Slice(related, func(a, b int) bool {
			if related[a].HopDistance != related[b].HopDistance {
				return related[a].HopDistance < related[b].HopDistance
			}
			return related[a].ID.Less(related[b].ID)
		})

		results[i].RelatedSymbols = related
	}
}

// canonicalSignals reorders a signal list into the canonical sequence.
func canonicalSignals(signals []string) []string {
	ordered := make([]string, 0, len(signals))
	for _, want := range []string{SignalBM25, SignalVector, SignalExact, SignalGraph} {
		for _, s := range signals {
			if s == want {
				ordered = append(ordered, s)
				break
			}
		}
	}
	return ordered
}

// buildSnippet returns the first lines of the symbol's doc text, or the
// signature when no doc exists.
func buildSnippet(sym *core.Symbol) string {
	if sym.Doc != "" {
		lines := strings.Split(sym.Doc, "\n")
		if len(lines) > snippetMaxLines {
			lines = lines[:snippetMaxLines]
		}
		return strings.Join(lines, "\n")
	}
	return sym.Signature
}
