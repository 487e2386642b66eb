// Package urlutil normalizes and composes service URLs.
package urlutil

import "strings"

// Normalize trims whitespace and trailing slashes so configured base URLs
// and endpoints compare and compose consistently.
func Normalize(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}

// BuildAbsolute builds an absolute URL from a base origin and a path.
// An already-absolute path is returned unchanged.
func BuildAbsolute(base, path string) string {
	base = Normalize(base)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}
