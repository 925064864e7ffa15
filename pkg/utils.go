// Package pkg
package pkg

import "strings"

// ContainsAny reports whether s matches any pattern, ignoring case. A
// pattern ending in "*" matches as a prefix, one starting with "*" as a
// suffix, and anything else as a substring.
func ContainsAny(s string, patterns []string) bool {
	s = strings.ToLower(s)

	for _, p := range patterns {
		p = strings.ToLower(p)

		switch {
		case strings.HasSuffix(p, "*"):
			if strings.HasPrefix(s, strings.TrimSuffix(p, "*")) {
				return true
			}
		case strings.HasPrefix(p, "*"):
			if strings.HasSuffix(s, strings.TrimPrefix(p, "*")) {
				return true
			}
		case strings.Contains(s, p):
			return true
		}
	}

	return false
}

// TrimPrefixFold removes prefix from s when s starts with it, ignoring case.
func TrimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}
