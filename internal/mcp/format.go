package mcp

import (
	"github.com/Aman-CERP/codeatlas/internal/retrieval"
)

// toResultOutput converts an engine result to its wire shape.
func toResultOutput(r retrieval.SearchResult) SearchResultOutput {
	out := SearchResultOutput{
		Name:          r.Name,
		QualifiedName: r.QualifiedName,
		Kind:          string(r.Kind),
		FilePath:      r.FilePath,
		StartLine:     r.StartLine,
		EndLine:       r.EndLine,
		Score:         r.Score,
		MatchSignals:  r.MatchSignals,
		Snippet:       r.Snippet,
	}

	for _, rel := range r.RelatedSymbols {
		out.Related = append(out.Related, RelatedOutput{
			Name:          rel.Name,
			QualifiedName: rel.QualifiedName,
			Kind:          string(rel.Kind),
			FilePath:      rel.FilePath,
			HopDistance:   rel.HopDistance,
		})
	}

	return out
}
