// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrimUpper trims and upper-cases each element, dropping empties
// and duplicates. Order is preserved. Used for ILS code lists such as
// branch allow-lists, where "eplmna " and "EPLMNA" name the same branch.
//
// Example:
//
//	DedupeAndTrimUpper([]string{" eplmna", "EPLCLV", "EPLMNA", ""})
//	// Returns: []string{"EPLMNA", "EPLCLV"}
func DedupeAndTrimUpper(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		code := strings.ToUpper(strings.TrimSpace(v))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			result = append(result, code)
		}
	}

	return result
}

// CollapseSpace trims s and replaces every internal whitespace run with sep.
//
// Example:
//
//	CollapseSpace("  780  555\t1212 ", "-")
//	// Returns: "780-555-1212"
func CollapseSpace(s, sep string) string {
	return strings.Join(strings.Fields(s), sep)
}
