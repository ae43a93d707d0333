// Package util provides small shared helpers that do not belong to any
// domain package.
package util

import "strings"

// SafeTruncate returns at most maxLen leading characters of s. Used when
// logging prefixes of sensitive values.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL strips trailing slashes so issuer and resource identifiers
// compare equal regardless of a trailing slash.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
