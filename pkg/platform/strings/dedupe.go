// Package strings holds small slice-of-string helpers.
package strings

import "strings"

// DedupeAndTrim trims each element and drops empties and repeats,
// keeping first-seen order. nil and empty inputs come back unchanged.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := values[:0:0]
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
