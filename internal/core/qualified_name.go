package core

import "strings"

// NormalizeQualifiedName converts a language-specific qualified name to
// the canonical dot-separated form stored in the index.
// Rust/C++ paths ("pkg::Type::method") and slash paths
// ("pkg/Type/method") both normalize to "pkg.Type.method".
func NormalizeQualifiedName(qn string) string {
	qn = strings.ReplaceAll(qn, "::", ".")
	qn = strings.ReplaceAll(qn, "/", ".")
	qn = strings.Trim(qn, ".")
	return qn
}

// NativeQualifiedName renders a canonical dot-form qualified name in
// the display convention of the symbol's source language.
func NativeQualifiedName(qn string, lang Language) string {
	switch lang {
	case LangRust, LangCpp:
		return strings.ReplaceAll(qn, ".", "::")
	default:
		return qn
	}
}
