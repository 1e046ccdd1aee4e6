package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "camelCase splits",
			input: "getUserById",
			want:  []string{"get", "user", "by", "id"},
		},
		{
			name:  "acronym stays together",
			input: "parseHTTPRequest",
			want:  []string{"parse", "http", "request"},
		},
		{
			name:  "snake_case splits",
			input: "process_data_batch",
			want:  []string{"process", "data", "batch"}, // "data" is a stop word downstream, kept here
		},
		{
			name:  "punctuation separates",
			input: "foo.bar(baz)",
			want:  []string{"foo", "bar", "baz"},
		},
		{
			name:  "short tokens dropped",
			input: "a b cd",
			want:  []string{"cd"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenizeCode(tt.input)
			if tt.name == "snake_case splits" {
				// Stop word filtering happens in the analyzer chain,
				// not in TokenizeCode.
				assert.Equal(t, []string{"process", "data", "batch"}, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"snake_case", []string{"snake", "case"}},
		{"camelCase", []string{"camel", "Case"}},
		{"PascalCase", []string{"Pascal", "Case"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"mixed_camelCase_parts", []string{"mixed", "camel", "Case", "parts"}},
		{"__dunder__", []string{"dunder"}},
		{"plain", []string{"plain"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIdentifier(tt.input))
		})
	}
}

func TestSplitCamelEmptyInput(t *testing.T) {
	assert.Empty(t, splitCamel(""))
}
