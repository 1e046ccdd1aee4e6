package retrieval

import (
	"sort"

	"github.com/Aman-CERP/codeatlas/internal/core"
)

// rrfK is the RRF smoothing constant (k in 1/(rank + k)).
// k=60 is the standard value validated across rank-fusion literature
// and production systems; it is deliberately not query-configurable
// because changing it breaks score comparability across queries.
const rrfK = 60.0

// RRFScore computes the reciprocal-rank contribution for a 1-indexed rank.
func RRFScore(rank int) float64 {
	return 1.0 / (float64(rank) + rrfK)
}

// candidate accumulates per-symbol fusion state across signals.
type candidate struct {
	id      core.SymbolID
	score   float64
	signals []string
}

// candidateSet is the working set of one search call: every symbol any
// signal surfaced, with its accumulated score and provenance.
//
// Signals must be merged in canonical order (bm25, vector, exact,
// graph); since float addition is not associative, a fixed order is
// what makes the fused score bit-reproducible.
type candidateSet struct {
	byID map[core.SymbolID]*candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byID: make(map[core.SymbolID]*candidate)}
}

// add merges one rank contribution for a symbol under a signal tag.
// Duplicate ids within one signal keep their best (first) rank.
func (c *candidateSet) add(id core.SymbolID, rank int, signal string, weight float64) {
	entry, ok := c.byID[id]
	if !ok {
		entry = &candidate{id: id}
		c.byID[id] = entry
	}

	for _, s := range entry.signals {
		if s == signal {
			return // one contribution per signal
		}
	}

	entry.score += weight * RRFScore(rank)
	entry.signals = append(entry.signals, signal)
}

// contains reports whether a symbol is already in the working set.
func (c *candidateSet) contains(id core.SymbolID) bool {
	_, ok := c.byID[id]
	return ok
}

// len returns the number of candidates.
func (c *candidateSet) len() int {
	return len(c.byID)
}

// ids returns all candidate ids in SymbolID byte order.
func (c *candidateSet) ids() []core.SymbolID {
	out := make([]core.SymbolID, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ranked returns candidates sorted by fused score descending, ties
// broken by SymbolID byte order ascending.
func (c *candidateSet) ranked() []*candidate {
	out := make([]*candidate, 0, len(c.byID))
	for _, entry := range c.byID {
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id.Less(out[j].id)
	})

	return out
}
