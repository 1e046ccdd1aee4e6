package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codeatlas/internal/core"
	atlaserr "github.com/Aman-CERP/codeatlas/internal/errors"
	"github.com/Aman-CERP/codeatlas/internal/store"
)

// mockFacade is a controllable storage facade for engine unit tests.
type mockFacade struct {
	bm25Hits    []store.Hit
	bm25Err     error
	knnHits     []store.Hit
	knnErr      error
	byName      map[string][]core.SymbolID
	byQualified map[string][]core.SymbolID
	lookupErr   error
	lookups     int
	traversals  map[core.SymbolID][]store.TraversalHit
	traverseErr error
	symbols     map[core.SymbolID]*core.Symbol
	hydrateErr  error
}

var _ store.Facade = (*mockFacade)(nil)

func (m *mockFacade) SearchBM25(ctx context.Context, text string, poolSize int, filters store.Filters) ([]store.Hit, error) {
	if m.bm25Err != nil {
		return nil, m.bm25Err
	}
	hits := m.bm25Hits
	if len(hits) > poolSize {
		hits = hits[:poolSize]
	}
	return hits, nil
}

func (m *mockFacade) SearchKNN(ctx context.Context, vector []float32, k int, filters store.Filters) ([]store.Hit, error) {
	if m.knnErr != nil {
		return nil, m.knnErr
	}
	hits := m.knnHits
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockFacade) FindByName(ctx context.Context, name string) ([]core.SymbolID, error) {
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.byName[name], nil
}

func (m *mockFacade) FindByQualifiedName(ctx context.Context, qn string) ([]core.SymbolID, error) {
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.byQualified[qn], nil
}

func (m *mockFacade) TraverseKHop(ctx context.Context, start core.SymbolID, depth, fanout int, direction store.TraversalDirection) ([]store.TraversalHit, error) {
	if m.traverseErr != nil {
		return nil, m.traverseErr
	}
	return m.traversals[start], nil
}

func (m *mockFacade) Hydrate(ctx context.Context, ids []core.SymbolID) ([]*core.Symbol, error) {
	if m.hydrateErr != nil {
		return nil, m.hydrateErr
	}
	out := make([]*core.Symbol, 0, len(ids))
	for _, id := range ids {
		if sym, ok := m.symbols[id]; ok {
			out = append(out, sym)
		}
	}
	return out, nil
}

func makeSym(name, qname, file string, byteStart int, lang core.Language) *core.Symbol {
	return &core.Symbol{
		ID:            core.NewSymbolID("test-repo", file, qname, byteStart, byteStart+100),
		Name:          name,
		QualifiedName: qname,
		Kind:          core.KindFunction,
		Language:      lang,
		FilePath:      file,
		StartByte:     byteStart,
		EndByte:       byteStart + 100,
		StartLine:     0,
		EndLine:       10,
		Signature:     "def " + name + "()",
	}
}

func symbolMap(symbols ...*core.Symbol) map[core.SymbolID]*core.Symbol {
	m := make(map[core.SymbolID]*core.Symbol, len(symbols))
	for _, s := range symbols {
		m[s.ID] = s
	}
	return m
}

func resultByID(t *testing.T, results []SearchResult, id core.SymbolID) *SearchResult {
	t.Helper()
	for i := range results {
		if results[i].ID == id {
			return &results[i]
		}
	}
	t.Fatalf("result %s not found", id)
	return nil
}

func newTestEngine(t *testing.T, facade store.Facade) *Engine {
	t.Helper()
	e, err := NewEngine(facade)
	require.NoError(t, err)
	return e
}

func TestNewEngineRequiresStorage(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)
}

// Scenario: a single BM25 signal produces the whole ranking.
func TestSearchSingleSignalBM25(t *testing.T) {
	s1 := makeSym("parse_xml", "parser.parse_xml", "f1.py", 0, core.LangPython)
	s2 := makeSym("parse_html", "parser.parse_html", "f1.py", 200, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}, {ID: s2.ID, Rank: 2}},
		symbols:  symbolMap(s1, s2),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("parse xml")
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, s1.ID, results[0].ID)
	assert.InDelta(t, 1.0/61.0, results[0].Score, 1e-12)
	assert.Equal(t, []string{"bm25"}, results[0].MatchSignals)

	assert.Equal(t, s2.ID, results[1].ID)
	assert.InDelta(t, 1.0/62.0, results[1].Score, 1e-12)
}

// Scenario: a symbol hit by both BM25 and exact match fuses both
// contributions and appears exactly once.
func TestSearchMultiSignalDedup(t *testing.T) {
	s1 := makeSym("handler", "api.handler", "f1.py", 0, core.LangPython)
	e1 := makeSym("handler", "a.handler", "f2.py", 0, core.LangPython)
	e2 := makeSym("handler", "b.handler", "f3.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}},
		byName:   map[string][]core.SymbolID{"handler": {e1.ID, e2.ID, s1.ID}},
		byQualified: map[string][]core.SymbolID{
			"handler": {e1.ID, e2.ID}, // two fields for e1/e2, one for s1
		},
		symbols: symbolMap(s1, e1, e2),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("handler")
	q.ExactQueries = []string{"handler"}
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)

	// s1 appears once with both signals fused: bm25 rank 1, exact rank 3
	// (behind the two double-field matches).
	count := 0
	for _, r := range results {
		if r.ID == s1.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)

	r := resultByID(t, results, s1.ID)
	assert.InDelta(t, 1.0/61.0+1.0/63.0, r.Score, 1e-12)
	assert.Equal(t, []string{"bm25", "exact"}, r.MatchSignals)
}

// Scenario: graph expansion surfaces a calls-neighbor both as a related
// symbol of the seed and as a graph-only result.
func TestSearchGraphExpansion(t *testing.T) {
	s1 := makeSym("process", "app.process", "f1.py", 0, core.LangPython)
	s3 := makeSym("helper", "app.helper", "f2.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}},
		traversals: map[core.SymbolID][]store.TraversalHit{
			s1.ID: {{ID: s3.ID, HopDistance: 1, RelationKind: core.RelationCalls}},
		},
		symbols: symbolMap(s1, s3),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("process")
	q.GraphDepth = 1
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 2)

	direct := resultByID(t, results, s1.ID)
	assert.Equal(t, []string{"bm25"}, direct.MatchSignals)
	require.Len(t, direct.RelatedSymbols, 1)
	assert.Equal(t, s3.ID, direct.RelatedSymbols[0].ID)
	assert.Equal(t, 1, direct.RelatedSymbols[0].HopDistance)

	graphOnly := resultByID(t, results, s3.ID)
	assert.Equal(t, []string{"graph"}, graphOnly.MatchSignals)
	assert.InDelta(t, 1.0/61.0, graphOnly.Score, 1e-12)
	// Graph-only results are not decorated with their own neighbors.
	assert.Empty(t, graphOnly.RelatedSymbols)
}

// Graph expansion never alters the scores of the direct hits that
// seeded it.
func TestSearchGraphIsolation(t *testing.T) {
	s1 := makeSym("process", "app.process", "f1.py", 0, core.LangPython)
	s3 := makeSym("helper", "app.helper", "f2.py", 0, core.LangPython)

	makeFacade := func() *mockFacade {
		return &mockFacade{
			bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}},
			traversals: map[core.SymbolID][]store.TraversalHit{
				s1.ID: {{ID: s3.ID, HopDistance: 1, RelationKind: core.RelationCalls}},
			},
			symbols: symbolMap(s1, s3),
		}
	}
	e := newTestEngine(t, makeFacade())

	withGraph := NewSearchQuery("process")
	resultsOn, err := e.Search(context.Background(), withGraph)
	require.NoError(t, err)

	withoutGraph := NewSearchQuery("process")
	withoutGraph.EnableGraphExpansion = false
	resultsOff, err := e.Search(context.Background(), withoutGraph)
	require.NoError(t, err)

	on := resultByID(t, resultsOn, s1.ID)
	off := resultByID(t, resultsOff, s1.ID)
	assert.Equal(t, off.Score, on.Score)

	// With expansion off, the neighbor disappears entirely.
	for _, r := range resultsOff {
		assert.NotEqual(t, s3.ID, r.ID)
	}
}

// Scenario: BM25 backend down, remaining signals still answer.
func TestSearchGracefulBM25Failure(t *testing.T) {
	s1 := makeSym("embed", "m.embed", "f1.py", 0, core.LangPython)
	s2 := makeSym("lookup", "m.lookup", "f2.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Err: store.ErrUnavailable,
		knnHits: []store.Hit{{ID: s1.ID, Rank: 1}},
		byName:  map[string][]core.SymbolID{"lookup": {s2.ID}},
		symbols: symbolMap(s1, s2),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("embed lookup")
	q.QueryVector = []float32{1, 0, 0, 0}
	q.ExactQueries = []string{"lookup"}
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.NotContains(t, r.MatchSignals, "bm25")
		assert.NotEmpty(t, r.MatchSignals)
	}
}

// Scenario: empty inputs are a caller bug, not an empty search.
func TestSearchEmptyInputsInvalidQuery(t *testing.T) {
	e := newTestEngine(t, &mockFacade{})

	q := NewSearchQuery("   ")
	_, err := e.Search(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, atlaserr.ErrCodeInvalidQuery, atlaserr.GetCode(err))
}

// Scenario: equal fused scores order by SymbolID byte order, reproducibly.
func TestSearchDeterminismUnderTie(t *testing.T) {
	a := makeSym("alpha", "m.alpha", "f1.py", 0, core.LangPython)
	b := makeSym("beta", "m.beta", "f2.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: a.ID, Rank: 1}},
		knnHits:  []store.Hit{{ID: b.ID, Rank: 1}},
		symbols:  symbolMap(a, b),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("tie")
	q.QueryVector = []float32{1, 0}
	q.EnableGraphExpansion = false

	first, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, first, 2)

	smaller := a.ID
	if b.ID.Less(a.ID) {
		smaller = b.ID
	}
	assert.Equal(t, smaller, first[0].ID)

	second, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchStorageUnavailable(t *testing.T) {
	facade := &mockFacade{
		bm25Err:   store.ErrUnavailable,
		knnErr:    store.ErrUnavailable,
		lookupErr: store.ErrUnavailable,
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("anything")
	q.QueryVector = []float32{1, 0}
	q.ExactQueries = []string{"anything"}
	_, err := e.Search(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, atlaserr.ErrCodeStorageUnavailable, atlaserr.GetCode(err))
}

func TestSearchNothingMatchesIsSuccess(t *testing.T) {
	// No backend errors, no hits: empty result, not an error.
	e := newTestEngine(t, &mockFacade{})

	results, err := e.Search(context.Background(), NewSearchQuery("no such thing"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchVectorDimensionMismatchDegrades(t *testing.T) {
	s1 := makeSym("found", "m.found", "f1.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}},
		knnErr:   store.DimensionMismatchError{Expected: 768, Got: 4},
		symbols:  symbolMap(s1),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("found")
	q.QueryVector = []float32{1, 0, 0, 0}
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"bm25"}, results[0].MatchSignals)
}

func TestSearchExactSkippedWhenNoExactQueries(t *testing.T) {
	s1 := makeSym("found", "m.found", "f1.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}},
		// Any equality lookup against the raw text is counted and fails.
		lookupErr: errors.New("exact lookup must not run"),
		symbols:   symbolMap(s1),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("how does the parser handle malformed xml entities?")
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"bm25"}, results[0].MatchSignals)
	assert.Zero(t, facade.lookups)
}

func TestSearchLimitRespected(t *testing.T) {
	symbols := map[core.SymbolID]*core.Symbol{}
	var hits []store.Hit
	for i := 0; i < 30; i++ {
		s := makeSym("widget", "m.widget", "f1.py", i*200, core.LangPython)
		symbols[s.ID] = s
		hits = append(hits, store.Hit{ID: s.ID, Rank: i + 1})
	}

	e := newTestEngine(t, &mockFacade{bm25Hits: hits, symbols: symbols})

	q := NewSearchQuery("widget")
	q.Limit = 5
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	// Limit above the cap clamps to 100.
	q.Limit = 5000
	results, err = e.Search(context.Background(), q)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), MaxLimit)
}

func TestSearchHydrationSkipsEvictedSymbols(t *testing.T) {
	s1 := makeSym("kept", "m.kept", "f1.py", 0, core.LangPython)
	gone := makeSym("gone", "m.gone", "f2.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: gone.ID, Rank: 1}, {ID: s1.ID, Rank: 2}},
		symbols:  symbolMap(s1), // "gone" evicted between ranking and hydration
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("kept gone")
	q.EnableGraphExpansion = false
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, s1.ID, results[0].ID)
}

func TestSearchGraphOnlyFilteredByLanguage(t *testing.T) {
	s1 := makeSym("process", "app.process", "f1.py", 0, core.LangPython)
	s2 := makeSym("neighbor", "app.neighbor", "f2.go", 0, core.LangGo)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}},
		traversals: map[core.SymbolID][]store.TraversalHit{
			s1.ID: {{ID: s2.ID, HopDistance: 1, RelationKind: core.RelationCalls}},
		},
		symbols: symbolMap(s1, s2),
	}
	e := newTestEngine(t, facade)

	q := NewSearchQuery("process")
	q.LanguageFilter = core.LangPython
	results, err := e.Search(context.Background(), q)
	require.NoError(t, err)

	for _, r := range results {
		assert.Equal(t, core.LangPython, r.Language)
	}
}

func TestSearchMinHopAcrossSeeds(t *testing.T) {
	// Two seeds discover the same neighbor at different hops; the
	// neighbor scores by its minimum distance.
	s1 := makeSym("seed_one", "m.seed_one", "f1.py", 0, core.LangPython)
	s2 := makeSym("seed_two", "m.seed_two", "f2.py", 0, core.LangPython)
	n := makeSym("shared", "m.shared", "f3.py", 0, core.LangPython)

	facade := &mockFacade{
		bm25Hits: []store.Hit{{ID: s1.ID, Rank: 1}, {ID: s2.ID, Rank: 2}},
		traversals: map[core.SymbolID][]store.TraversalHit{
			s1.ID: {{ID: n.ID, HopDistance: 2, RelationKind: core.RelationCalls}},
			s2.ID: {{ID: n.ID, HopDistance: 1, RelationKind: core.RelationCalls}},
		},
		symbols: symbolMap(s1, s2, n),
	}
	e := newTestEngine(t, facade)

	results, err := e.Search(context.Background(), NewSearchQuery("seed"))
	require.NoError(t, err)

	shared := resultByID(t, results, n.ID)
	assert.InDelta(t, 1.0/61.0, shared.Score, 1e-12, "min hop of 1 wins")
}

func TestSearchGraphDepthClamped(t *testing.T) {
	q := NewSearchQuery("x")
	q.GraphDepth = 99
	normalized := q.normalized()
	assert.Equal(t, MaxGraphDepth, normalized.GraphDepth)

	q.GraphDepth = -1
	normalized = q.normalized()
	assert.Equal(t, 0, normalized.GraphDepth)
}

func TestEffectiveBM25Text(t *testing.T) {
	q := NewSearchQuery("original")
	assert.Equal(t, "original", q.EffectiveBM25Text())

	q.BM25Text = "override tokens original"
	assert.Equal(t, "override tokens original", q.EffectiveBM25Text())
}
