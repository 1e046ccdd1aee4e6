// Package query turns user-facing natural-language text into an
// engine-ready SearchQuery: it extracts code identifiers with pure
// regex rules and routes per-signal inputs (BM25 text, exact queries,
// embedding vector).
package query

import (
	"regexp"
	"strings"
)

// Extraction limits. Long problem descriptions can contain dozens of
// identifier-shaped tokens; the tail adds noise, not recall.
const maxExtractedIdentifiers = 30

var (
	// camelRegex matches CamelCase / PascalCase runs with at least one
	// internal case boundary, including acronym-led forms (HTMLParser).
	camelRegex = regexp.MustCompile(`\b[A-Z][a-z0-9]*(?:[A-Z][a-zA-Z0-9]*)+\b|\b[a-z]+(?:[A-Z][a-zA-Z0-9]*)+\b`)

	// snakeRegex matches snake_case and SCREAMING_SNAKE_CASE with at
	// least one underscore-separated pair.
	snakeRegex = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*(?:_[A-Za-z0-9]+)+\b`)

	// dottedRegex matches identifier chains: a.b.c, pkg::Type::method,
	// path/form segments. Separators normalize to dots.
	dottedRegex = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:(?:\.|::|/)[A-Za-z_][A-Za-z0-9_]*)+\b`)

	// pathRegex matches file-path-looking tokens with an extension.
	pathRegex = regexp.MustCompile(`\b[\w./-]+\.(?:py|go|rs|js|ts|tsx|java|c|cc|cpp|h|hpp|rb|php)\b`)

	// underscoreRegex matches leading-underscore identifiers (__init__).
	underscoreRegex = regexp.MustCompile(`\b_+[A-Za-z][A-Za-z0-9_]*\b`)
)

// stopwords are common English words that survive the identifier
// regexes in CamelCase-adjacent positions or short snake pairs.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {},
	"that": {}, "when": {}, "where": {}, "what": {}, "how": {}, "why": {},
	"does": {}, "not": {}, "are": {}, "was": {}, "has": {}, "have": {},
	"can": {}, "should": {}, "would": {}, "into": {}, "onto": {}, "some": {},
	"all": {}, "any": {}, "but": {}, "use": {}, "used": {}, "using": {},
	"error": {}, "bug": {}, "issue": {}, "problem": {}, "fix": {},
}

// Extracted holds the identifier tokens pulled out of a query, split by
// their downstream use.
type Extracted struct {
	// Exact holds identifiers in their verbatim form, deduplicated,
	// discovery order preserved. These feed the exact-match signal.
	Exact []string

	// Widened holds additional lowercase fragments for BM25 recall
	// (camel components, stripped underscores, path stems).
	Widened []string
}

// ExtractIdentifiers scans text for code-identifier tokens.
// Deterministic, pure regex, no external calls.
func ExtractIdentifiers(text string) Extracted {
	var ex Extracted
	seen := map[string]struct{}{}
	seenWide := map[string]struct{}{}

	addExact := func(token string) {
		if len(ex.Exact) >= maxExtractedIdentifiers {
			return
		}
		if token == "" {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		ex.Exact = append(ex.Exact, token)
	}

	addWidened := func(token string) {
		token = strings.ToLower(token)
		if len(token) < 2 {
			return
		}
		if _, stop := stopwords[token]; stop {
			return
		}
		if _, dup := seenWide[token]; dup {
			return
		}
		seenWide[token] = struct{}{}
		ex.Widened = append(ex.Widened, token)
	}

	// A token reads as a file path only when it has a directory part or
	// a single extension dot; "a.b.c" stays a dotted chain.
	looksLikePath := func(m string) bool {
		return pathRegex.MatchString(m) &&
			(strings.Contains(m, "/") || strings.Count(m, ".") == 1)
	}

	// Dotted chains first: they subsume their segments, and we keep the
	// full chain verbatim (short segments included) plus each segment of
	// at least two characters for widening.
	for _, m := range dottedRegex.FindAllString(text, -1) {
		if looksLikePath(m) {
			continue // handled as a path below
		}
		normalized := strings.ReplaceAll(m, "::", ".")
		normalized = strings.ReplaceAll(normalized, "/", ".")
		addExact(normalized)
		for _, seg := range strings.Split(normalized, ".") {
			if seg != "" {
				addWidened(seg)
			}
		}
	}

	// File paths: keep the stem (basename without extension).
	for _, m := range pathRegex.FindAllString(text, -1) {
		if !looksLikePath(m) {
			continue
		}
		base := m
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
			base = base[idx+1:]
		}
		if idx := strings.LastIndexByte(base, '.'); idx > 0 {
			base = base[:idx]
		}
		if len(base) >= 2 {
			addExact(base)
			addWidened(base)
		}
	}

	// CamelCase and PascalCase runs.
	for _, m := range camelRegex.FindAllString(text, -1) {
		addExact(m)
		for _, part := range splitCamelParts(m) {
			addWidened(part)
		}
	}

	// snake_case and SCREAMING_SNAKE_CASE.
	for _, m := range snakeRegex.FindAllString(text, -1) {
		if isStopPair(m) {
			continue
		}
		addExact(m)
		for _, part := range strings.Split(m, "_") {
			addWidened(part)
		}
	}

	// Leading-underscore identifiers: verbatim for exact, stripped for
	// BM25 widening (__init__ widens to init).
	for _, m := range underscoreRegex.FindAllString(text, -1) {
		addExact(m)
		stripped := strings.Trim(m, "_")
		if len(stripped) >= 2 {
			addWidened(stripped)
		}
	}

	return ex
}

// isStopPair filters snake matches whose every segment is an English
// stopword ("how_to" style artifacts from prose).
func isStopPair(token string) bool {
	for _, part := range strings.Split(strings.ToLower(token), "_") {
		if _, stop := stopwords[part]; !stop {
			return false
		}
	}
	return true
}

// splitCamelParts breaks a CamelCase run into component words,
// keeping acronym runs intact: "HTMLParser" -> ["HTML", "Parser"].
func splitCamelParts(s string) []string {
	var parts []string
	var current []rune

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && isUpper(r) {
			prevLower := isLower(runes[i-1])
			nextLower := i+1 < len(runes) && isLower(runes[i+1])
			if prevLower || nextLower {
				if len(current) > 0 {
					parts = append(parts, string(current))
					current = current[:0]
				}
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isLower(r rune) bool { return r >= 'a' && r <= 'z' }
