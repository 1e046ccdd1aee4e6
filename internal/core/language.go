package core

import "strings"

// Language is a normalized source-language tag ("go", "python", ...).
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangCpp        Language = "cpp"
	LangUnknown    Language = ""
)

// languageAliases maps common spellings and file extensions to tags.
var languageAliases = map[string]Language{
	"go":         LangGo,
	"golang":     LangGo,
	"py":         LangPython,
	"python":     LangPython,
	"python3":    LangPython,
	"rs":         LangRust,
	"rust":       LangRust,
	"java":       LangJava,
	"ts":         LangTypeScript,
	"typescript": LangTypeScript,
	"js":         LangJavaScript,
	"javascript": LangJavaScript,
	"c++":        LangCpp,
	"cpp":        LangCpp,
	"cxx":        LangCpp,
}

// NormalizeLanguage maps a user-supplied language string to a tag.
// Unknown strings pass through lowercased so filters still compare
// consistently against whatever the indexer recorded.
func NormalizeLanguage(s string) Language {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lang, ok := languageAliases[lower]; ok {
		return lang
	}
	return Language(lower)
}
