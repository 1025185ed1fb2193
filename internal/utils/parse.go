// Package utils holds small, dependency-free helpers shared across layers.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 integer, returning def when s is empty
// or malformed. Used for query parameters where absence means "default".
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ClampInt bounds v to the inclusive range [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
