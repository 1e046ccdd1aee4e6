package pipeline

import (
	"sort"

	"github.com/Aman-CERP/codeatlas/internal/retrieval"
)

// Score-gap defaults.
const (
	// DefaultGapRatio cuts the tail where a result scores below this
	// fraction of its predecessor.
	DefaultGapRatio = 0.4

	// DefaultMinKeep is the minimum number of results kept regardless
	// of score gaps.
	DefaultMinKeep = 3
)

// FileGroup aggregates all hits within one file. Best holds the
// highest-value symbol; Symbols holds the full group so callers can
// render per-file outlines.
type FileGroup struct {
	FilePath string
	Best     retrieval.SearchResult
	Symbols  []retrieval.SearchResult

	// Score is the best symbol's fused score.
	Score float64

	// Signals is the union of match signals across the group, in
	// canonical order.
	Signals []string
}

// AggregateByFile groups results by file path, ordering groups by their
// best score descending and symbols within a group by preference.
//
// "Best" prefers container kinds (class/struct/interface/trait) over
// callables over everything else, then higher score, then lower
// SymbolID — a class hit names the file better than one of its
// constants does.
func AggregateByFile(results []retrieval.SearchResult) []FileGroup {
	if len(results) == 0 {
		return []FileGroup{}
	}

	byFile := map[string][]retrieval.SearchResult{}
	order := []string{}
	for _, r := range results {
		if _, seen := byFile[r.FilePath]; !seen {
			order = append(order, r.FilePath)
		}
		byFile[r.FilePath] = append(byFile[r.FilePath], r)
	}

	groups := make([]FileGroup, 0, len(order))
	for _, path := range order {
		symbols := byFile[path]
		sort.SliceStable(symbols, func(i, j int) bool {
			return preferSymbol(&symbols[i], &symbols[j])
		})

		group := FileGroup{
			FilePath: path,
			Best:     symbols[0],
			Symbols:  symbols,
			Score:    symbols[0].Score,
			Signals:  unionSignals(symbols),
		}
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].Best.ID.Less(groups[j].Best.ID)
	})

	return groups
}

// preferSymbol orders symbols within a file group.
func preferSymbol(a, b *retrieval.SearchResult) bool {
	ta, tb := a.Kind.Tier(), b.Kind.Tier()
	if ta != tb {
		return ta < tb
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID.Less(b.ID)
}

// unionSignals collects the distinct signals of a group in canonical order.
func unionSignals(symbols []retrieval.SearchResult) []string {
	present := map[string]bool{}
	for _, s := range symbols {
		for _, sig := range s.MatchSignals {
			present[sig] = true
		}
	}

	ordered := make([]string, 0, len(present))
	for _, sig := range []string{retrieval.SignalBM25, retrieval.SignalVector, retrieval.SignalExact, retrieval.SignalGraph} {
		if present[sig] {
			ordered = append(ordered, sig)
		}
	}
	return ordered
}

// ApplyScoreGap cuts a score-sorted result list at the first position
// i >= minKeep where score[i] falls below gapRatio of score[i-1].
// Long weakly-related tails disappear; strong heads survive whole.
func ApplyScoreGap(results []retrieval.SearchResult, gapRatio float64, minKeep int) []retrieval.SearchResult {
	if minKeep < 1 {
		minKeep = 1
	}
	if len(results) <= minKeep {
		return results
	}

	cut := len(results)
	for i := minKeep; i < len(results); i++ {
		prev := results[i-1].Score
		if prev > 0 && results[i].Score/prev < gapRatio {
			cut = i
			break
		}
	}

	return results[:cut]
}

// applyScoreGapGroups is ApplyScoreGap over file groups.
func applyScoreGapGroups(groups []FileGroup, gapRatio float64, minKeep int) []FileGroup {
	if minKeep < 1 {
		minKeep = 1
	}
	if len(groups) <= minKeep {
		return groups
	}

	cut := len(groups)
	for i := minKeep; i < len(groups); i++ {
		prev := groups[i-1].Score
		if prev > 0 && groups[i].Score/prev < gapRatio {
			cut = i
			break
		}
	}

	return groups[:cut]
}
