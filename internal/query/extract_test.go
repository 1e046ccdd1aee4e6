package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCamelCase(t *testing.T) {
	ex := ExtractIdentifiers("why does XMLParser fail on nested entities")

	assert.Contains(t, ex.Exact, "XMLParser")
	assert.Contains(t, ex.Widened, "xml")
	assert.Contains(t, ex.Widened, "parser")
}

func TestExtractAcronymLedCamel(t *testing.T) {
	ex := ExtractIdentifiers("the HTMLParser and HTTPSConnection classes")

	assert.Contains(t, ex.Exact, "HTMLParser")
	assert.Contains(t, ex.Exact, "HTTPSConnection")
	assert.Contains(t, ex.Widened, "html")
	assert.Contains(t, ex.Widened, "https")
	assert.Contains(t, ex.Widened, "connection")
}

func TestExtractSnakeCase(t *testing.T) {
	ex := ExtractIdentifiers("process_data raises in SCREAMING_SNAKE mode")

	assert.Contains(t, ex.Exact, "process_data")
	assert.Contains(t, ex.Exact, "SCREAMING_SNAKE")
	assert.Contains(t, ex.Widened, "process")
	assert.Contains(t, ex.Widened, "snake")
}

func TestExtractDottedChains(t *testing.T) {
	ex := ExtractIdentifiers("call a.b.c and pkg::Type::method here")

	assert.Contains(t, ex.Exact, "a.b.c")
	assert.Contains(t, ex.Exact, "pkg.Type.method", "separators normalize to dots")
	// Chain segments widen even below the length-2 floor? Single-char
	// segments come from inside a chain and are kept for BM25 only when
	// at least two chars; "a" stays out of Widened.
	assert.Contains(t, ex.Widened, "pkg")
	assert.Contains(t, ex.Widened, "method")
}

func TestExtractFilePathStem(t *testing.T) {
	ex := ExtractIdentifiers("see src/parsers/xml_reader.py for details")

	assert.Contains(t, ex.Exact, "xml_reader")
	assert.Contains(t, ex.Widened, "xml_reader")
}

func TestExtractLeadingUnderscore(t *testing.T) {
	ex := ExtractIdentifiers("the __init__ method ignores _private fields")

	assert.Contains(t, ex.Exact, "__init__", "verbatim for exact lookup")
	assert.Contains(t, ex.Widened, "init", "stripped for BM25 widening")
	assert.Contains(t, ex.Exact, "_private")
	assert.Contains(t, ex.Widened, "private")
}

func TestExtractFiltersStopwordsAndShortTokens(t *testing.T) {
	ex := ExtractIdentifiers("How does the parser handle it?")

	assert.Empty(t, ex.Exact)
	assert.Empty(t, ex.Widened)
}

func TestExtractPlainProseYieldsNothing(t *testing.T) {
	ex := ExtractIdentifiers("something is broken somewhere in the program")
	assert.Empty(t, ex.Exact)
}

func TestExtractDeduplicates(t *testing.T) {
	ex := ExtractIdentifiers("parse_xml calls parse_xml then ParseTree then parse_xml")

	require.GreaterOrEqual(t, len(ex.Exact), 2)

	count := 0
	for _, tok := range ex.Exact {
		if tok == "parse_xml" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractDeterministic(t *testing.T) {
	text := "HTMLParser breaks in xml_utils.parse_entity over src/html/parser.py"
	first := ExtractIdentifiers(text)
	second := ExtractIdentifiers(text)
	assert.Equal(t, first, second)
}

func TestExtractCapsIdentifierCount(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += " token_number_" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + "x"
	}
	ex := ExtractIdentifiers(long)
	assert.LessOrEqual(t, len(ex.Exact), maxExtractedIdentifiers)
}

func TestSplitCamelParts(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"HTMLParser", []string{"HTML", "Parser"}},
		{"parseXML", []string{"parse", "XML"}},
		{"getUserByID", []string{"get", "User", "By", "ID"}},
		{"simple", []string{"simple"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitCamelParts(tt.in), tt.in)
	}
}
