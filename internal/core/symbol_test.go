package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSymbolIDDeterministic(t *testing.T) {
	a := NewSymbolID("repo", "src/app.py", "app.process_data", 0, 100)
	b := NewSymbolID("repo", "src/app.py", "app.process_data", 0, 100)
	assert.Equal(t, a, b)
}

func TestNewSymbolIDDistinguishesFields(t *testing.T) {
	base := NewSymbolID("repo", "src/app.py", "app.process_data", 0, 100)

	tests := []struct {
		name string
		id   SymbolID
	}{
		{"repo", NewSymbolID("other", "src/app.py", "app.process_data", 0, 100)},
		{"path", NewSymbolID("repo", "src/other.py", "app.process_data", 0, 100)},
		{"qualified name", NewSymbolID("repo", "src/app.py", "app.other", 0, 100)},
		{"byte start", NewSymbolID("repo", "src/app.py", "app.process_data", 1, 100)},
		{"byte end", NewSymbolID("repo", "src/app.py", "app.process_data", 0, 101)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.id)
		})
	}
}

func TestSymbolIDStringRoundTrip(t *testing.T) {
	id := NewSymbolID("repo", "a.go", "a.Fn", 10, 20)

	s := id.String()
	require.Len(t, s, 32)

	parsed, err := ParseSymbolID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseSymbolIDRejectsBadInput(t *testing.T) {
	_, err := ParseSymbolID("short")
	assert.Error(t, err)

	_, err = ParseSymbolID("zz000000000000000000000000000000")
	assert.Error(t, err)
}

func TestSymbolIDCompare(t *testing.T) {
	lo := SymbolID{0x00, 0x01}
	hi := SymbolID{0xff, 0x00}

	assert.Equal(t, -1, lo.Compare(hi))
	assert.Equal(t, 1, hi.Compare(lo))
	assert.Equal(t, 0, lo.Compare(lo))
	assert.True(t, lo.Less(hi))
	assert.False(t, hi.Less(lo))
}

func TestKindTier(t *testing.T) {
	assert.Equal(t, 0, KindClass.Tier())
	assert.Equal(t, 0, KindStruct.Tier())
	assert.Equal(t, 0, KindInterface.Tier())
	assert.Equal(t, 0, KindTrait.Tier())
	assert.Equal(t, 1, KindFunction.Tier())
	assert.Equal(t, 1, KindMethod.Tier())
	assert.Equal(t, 2, KindConstant.Tier())
	assert.Equal(t, 2, KindModule.Tier())
}

func TestNormalizeQualifiedName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pkg::Type::method", "pkg.Type.method"},
		{"pkg/Type", "pkg.Type"},
		{"a.b.c", "a.b.c"},
		{".leading.dot", "leading.dot"},
		{"mixed::path/form", "mixed.path.form"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeQualifiedName(tt.in), tt.in)
	}
}

func TestNativeQualifiedName(t *testing.T) {
	assert.Equal(t, "pkg::Type::method", NativeQualifiedName("pkg.Type.method", LangRust))
	assert.Equal(t, "pkg::Type", NativeQualifiedName("pkg.Type", LangCpp))
	assert.Equal(t, "pkg.Type.method", NativeQualifiedName("pkg.Type.method", LangPython))
	assert.Equal(t, "pkg.Fn", NativeQualifiedName("pkg.Fn", LangGo))
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, LangGo, NormalizeLanguage("Golang"))
	assert.Equal(t, LangPython, NormalizeLanguage(" py "))
	assert.Equal(t, LangRust, NormalizeLanguage("rs"))
	assert.Equal(t, Language("zig"), NormalizeLanguage("Zig"))
}

func TestRelationDefaultConfidence(t *testing.T) {
	assert.Equal(t, 1.0, RelationContains.DefaultConfidence())
	assert.Equal(t, 0.8, RelationCalls.DefaultConfidence())
	assert.Equal(t, 0.6, RelationUses.DefaultConfidence())
}
