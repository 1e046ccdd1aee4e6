package core

// RelationKind classifies a directed edge between two symbols.
type RelationKind string

const (
	RelationCalls      RelationKind = "calls"
	RelationImports    RelationKind = "imports"
	RelationInherits   RelationKind = "inherits"
	RelationImplements RelationKind = "implements"
	RelationUses       RelationKind = "uses"
	RelationContains   RelationKind = "contains"
)

// DefaultConfidence returns the indexer's default confidence for edges
// of this kind. Containment and imports are syntactically certain;
// call and use edges come from best-effort name resolution.
func (k RelationKind) DefaultConfidence() float64 {
	switch k {
	case RelationContains, RelationImports:
		return 1.0
	case RelationInherits, RelationImplements:
		return 0.9
	case RelationCalls:
		return 0.8
	case RelationUses:
		return 0.6
	default:
		return 0.5
	}
}

// Valid reports whether k is one of the known relation kinds.
func (k RelationKind) Valid() bool {
	switch k {
	case RelationCalls, RelationImports, RelationInherits,
		RelationImplements, RelationUses, RelationContains:
		return true
	}
	return false
}

// Relation is a directed edge in the symbol graph. Relations are only
// traversed for graph expansion; they are never ranked directly.
type Relation struct {
	SourceID   SymbolID
	TargetID   SymbolID
	Kind       RelationKind
	FilePath   string // file containing the reference
	Line       int
	Confidence float64 // [0, 1]
}
