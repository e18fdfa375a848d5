package preprocessor

import (
	"path/filepath"
	"regexp"
	"strings"
)

// SourceKind selects the cleaning rules for a source file.
type SourceKind int

const (
	KindUnknown SourceKind = iota
	KindAssembly
	KindC
)

// KindFromName maps a submitted file name to its cleaning rules.
// .a51 and .asm are 8051 assembly, .c is C; anything else gets the
// conservative default cleaning.
func KindFromName(name string) SourceKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".a51", ".asm":
		return KindAssembly
	case ".c":
		return KindC
	default:
		return KindUnknown
	}
}

var (
	asmCommentRe    = regexp.MustCompile(`;.*`)
	cLineCommentRe  = regexp.MustCompile(`//.*`)
	cBlockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cPreprocRe      = regexp.MustCompile(`(?m)^\s*#.*$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// CleanSource strips comments, collapses whitespace to single spaces and
// lowercases the result so comparison is case-insensitive. Returns ""
// for content that is empty after cleaning.
func CleanSource(content string, kind SourceKind) string {
	switch kind {
	case KindAssembly:
		content = asmCommentRe.ReplaceAllString(content, "")
	case KindC:
		content = cPreprocRe.ReplaceAllString(content, "")
		content = cBlockCommentRe.ReplaceAllString(content, "")
		content = cLineCommentRe.ReplaceAllString(content, "")
	default:
		content = cBlockCommentRe.ReplaceAllString(content, "")
		content = cLineCommentRe.ReplaceAllString(content, "")
	}

	content = whitespaceRe.ReplaceAllString(content, " ")
	return strings.ToLower(strings.TrimSpace(content))
}

// Tokenize splits cleaned source into whitespace-delimited tokens.
func Tokenize(cleaned string) []string {
	return strings.Fields(cleaned)
}
