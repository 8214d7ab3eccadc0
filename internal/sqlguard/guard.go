// Package sqlguard is the lexical read-only gate in front of the warehouse.
//
// It does not parse SQL. Classify rejects any text that contains one of a
// fixed list of statement keywords as a whole word, and
// QualifyCatalogIntrospection pins INFORMATION_SCHEMA.TABLES references to
// the configured catalog. Both are plain text operations: engine-specific
// constructs that mutate state without one of the listed keywords are not
// detected.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrReadOnlyViolation      = errors.New("only read-only queries are allowed")
	ErrAmbiguousIntrospection = errors.New("INFORMATION_SCHEMA queries must name a dataset (e.g. dataset.INFORMATION_SCHEMA.TABLES)")
)

// ForbiddenKeywords is the complete, ordered keyword list. Changing it changes
// which queries existing callers can run.
var ForbiddenKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"CREATE",
	"DROP",
	"ALTER",
	"MERGE",
	"TRUNCATE",
	"GRANT",
	"REVOKE",
	"EXECUTE",
	"BEGIN",
	"COMMIT",
	"ROLLBACK",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)

type Classification struct {
	Allowed bool
	Keyword string
	Reason  string
}

func (c Classification) Err() error {
	if c.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrReadOnlyViolation, c.Reason)
}

// Classify reports whether sqlText may be forwarded to the warehouse. The
// contents of quoted string literals are not scanned; comments and
// identifiers are.
func Classify(sqlText string) Classification {
	match := forbiddenPattern.FindString(maskStringLiterals(sqlText))
	if match == "" {
		return Classification{Allowed: true}
	}
	keyword := strings.ToUpper(match)
	return Classification{
		Keyword: keyword,
		Reason:  fmt.Sprintf("query contains forbidden keyword %s", keyword),
	}
}

// maskStringLiterals blanks the contents of '...' and "..." literals so that
// words inside them never count as keywords. The quote characters stay in
// place, so word boundaries around the literal are unchanged.
//
// Quotes inside comments (--, # and /* */) and backtick identifiers do not
// open a literal; those spans are copied unchanged and still scanned. If a
// literal is never closed the text is returned unmasked.
func maskStringLiterals(sqlText string) string {
	if !strings.ContainsAny(sqlText, `'"`) {
		return sqlText
	}

	masked := []byte(sqlText)
	for i := 0; i < len(masked); i++ {
		switch c := masked[i]; {
		case c == '-' && i+1 < len(masked) && masked[i+1] == '-', c == '#':
			i = skipUntil(masked, i+1, "\n")
		case c == '/' && i+1 < len(masked) && masked[i+1] == '*':
			i = skipUntil(masked, i+2, "*/")
		case c == '`':
			i = skipUntil(masked, i+1, "`")
		case c == '\'' || c == '"':
			end, ok := blankLiteral(masked, i)
			if !ok {
				return sqlText
			}
			i = end
		}
	}
	return string(masked)
}

// skipUntil returns the index of the last byte of the first terminator at or
// after from, or the last index of text when there is none.
func skipUntil(text []byte, from int, terminator string) int {
	end := strings.Index(string(text[from:]), terminator)
	if end < 0 {
		return len(text) - 1
	}
	return from + end + len(terminator) - 1
}

// blankLiteral masks the literal opened at text[start] and returns the index
// of its closing quote. Backslash escapes are honoured.
func blankLiteral(text []byte, start int) (int, bool) {
	quote := text[start]
	escaped := false
	for i := start + 1; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == quote:
			return i, true
		}
		text[i] = ' '
	}
	return len(text) - 1, false
}
