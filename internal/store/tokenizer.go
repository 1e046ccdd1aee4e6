package store

import (
	"regexp"
	"strings"
	"unicode"
)

// wordRegex matches alphanumeric runs (underscores included so that
// snake_case identifiers survive the first split intact).
var wordRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// codeStopWords are tokens too common in source code to carry signal.
var codeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"self", "this", "new", "nil", "null", "none", "true", "false",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// TokenizeCode splits text with code-aware rules: camelCase, PascalCase,
// and snake_case identifiers break into their components, everything is
// lowercased, and tokens shorter than two characters are dropped.
func TokenizeCode(text string) []string {
	var tokens []string

	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, part := range SplitIdentifier(word) {
			lower := strings.ToLower(part)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// SplitIdentifier splits snake_case and camelCase identifiers into parts.
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamel(part)...)
			}
		}
		return result
	}
	return splitCamel(token)
}

// splitCamel splits camelCase and PascalCase runs, keeping acronyms
// together: "parseHTTPRequest" -> ["parse", "HTTP", "Request"].
func splitCamel(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Boundary when leaving lowercase, or when an acronym ends
			// and a new word begins ("HTTPServer" -> HTTP | Server).
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// buildStopWordSet converts a stop word list into a lookup set.
func buildStopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
