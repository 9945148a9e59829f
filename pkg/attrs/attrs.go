// Package attrs reads values out of slog-style key/value slices.
package attrs

// ExtractString returns the string value paired with key in a
// [key1, value1, key2, value2, ...] slice. Missing keys and non-string
// values yield "".
func ExtractString(kv []any, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := kv[i+1].(string); ok {
			return v
		}
	}
	return ""
}
