package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codeatlas/internal/core"
	"github.com/Aman-CERP/codeatlas/internal/pipeline"
	"github.com/Aman-CERP/codeatlas/internal/retrieval"
	"github.com/Aman-CERP/codeatlas/internal/store"
)

func fixtureServer(t *testing.T) *Server {
	t.Helper()

	m, err := store.OpenMemory(4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	sym := &core.Symbol{
		ID:            core.NewSymbolID("mcp-repo", "src/app.py", "app.process_data", 0, 100),
		Name:          "process_data",
		QualifiedName: "app.process_data",
		Kind:          core.KindFunction,
		Language:      core.LangPython,
		FilePath:      "src/app.py",
		EndByte:       100,
		EndLine:       10,
		Signature:     "def process_data()",
	}
	require.NoError(t, m.IndexSymbols(context.Background(), []*core.Symbol{sym}, nil))

	p, err := pipeline.New(m)
	require.NoError(t, err)

	s, err := NewServer(p, m)
	require.NoError(t, err)
	return s
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestSearchCodeHandler(t *testing.T) {
	s := fixtureServer(t)

	_, out, err := s.searchCodeHandler(context.Background(), nil, SearchCodeInput{
		Query: "process_data",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)

	r := out.Results[0]
	assert.Equal(t, "process_data", r.Name)
	assert.Equal(t, "app.process_data", r.QualifiedName)
	assert.Equal(t, "function", r.Kind)
	assert.Equal(t, "src/app.py", r.FilePath)
	assert.NotEmpty(t, r.MatchSignals)

	require.NotEmpty(t, out.Files)
	assert.Equal(t, "src/app.py", out.Files[0].FilePath)
}

func TestSearchCodeHandlerRequiresQuery(t *testing.T) {
	s := fixtureServer(t)

	_, _, err := s.searchCodeHandler(context.Background(), nil, SearchCodeInput{Query: "  "})
	assert.Error(t, err)
}

func TestSearchCodeHandlerLanguageFilter(t *testing.T) {
	s := fixtureServer(t)

	_, out, err := s.searchCodeHandler(context.Background(), nil, SearchCodeInput{
		Query:    "process_data",
		Language: "rust",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestFindSymbolHandler(t *testing.T) {
	s := fixtureServer(t)

	_, out, err := s.findSymbolHandler(context.Background(), nil, FindSymbolInput{
		Name: "process_data",
	})
	require.NoError(t, err)
	require.Len(t, out.Symbols, 1)
	assert.Equal(t, "app.process_data", out.Symbols[0].QualifiedName)

	// Qualified name resolves to the same symbol, not a duplicate.
	_, out, err = s.findSymbolHandler(context.Background(), nil, FindSymbolInput{
		Name: "app.process_data",
	})
	require.NoError(t, err)
	assert.Len(t, out.Symbols, 1)
}

func TestFindSymbolHandlerRequiresName(t *testing.T) {
	s := fixtureServer(t)

	_, _, err := s.findSymbolHandler(context.Background(), nil, FindSymbolInput{Name: ""})
	assert.Error(t, err)
}

func TestToResultOutputCarriesRelated(t *testing.T) {
	r := retrieval.SearchResult{
		Name:         "a",
		MatchSignals: []string{"bm25"},
		RelatedSymbols: []retrieval.RelatedSymbol{
			{Name: "b", QualifiedName: "m.b", Kind: core.KindFunction, FilePath: "m.py", HopDistance: 1},
		},
	}

	out := toResultOutput(r)
	require.Len(t, out.Related, 1)
	assert.Equal(t, "b", out.Related[0].Name)
	assert.Equal(t, 1, out.Related[0].HopDistance)
}
