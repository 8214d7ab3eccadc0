package sqlguard

import (
	"regexp"
	"strings"
)

var introspectionPattern = regexp.MustCompile(`(?i)FROM\s+(?:(\w+)\.)?INFORMATION_SCHEMA\.TABLES`)

// NeedsQualification is the cheap pre-filter run before the rewrite.
func NeedsQualification(sqlText string) bool {
	return strings.Contains(strings.ToUpper(sqlText), "INFORMATION_SCHEMA")
}

// QualifyCatalogIntrospection rewrites every "FROM [dataset.]INFORMATION_SCHEMA.TABLES"
// into a backtick-quoted reference inside catalogID. A reference without a
// dataset cannot be rewritten and fails the whole query with
// ErrAmbiguousIntrospection. Other INFORMATION_SCHEMA views are left as-is.
func QualifyCatalogIntrospection(sqlText, catalogID string) (string, error) {
	var rewriteErr error
	rewritten := introspectionPattern.ReplaceAllStringFunc(sqlText, func(match string) string {
		groups := introspectionPattern.FindStringSubmatch(match)
		dataset := groups[1]
		if dataset == "" {
			rewriteErr = ErrAmbiguousIntrospection
			return match
		}
		return "FROM `" + catalogID + "." + dataset + ".INFORMATION_SCHEMA.TABLES`"
	})
	if rewriteErr != nil {
		return "", rewriteErr
	}
	return rewritten, nil
}
