// Package enums holds the string-backed enumerations persisted in the
// database and carried in tokens and gateway calls.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func member[T ~string](value T, set []T) bool {
	return slices.Contains(set, value)
}

// parse matches raw against set after trimming and lower-casing.
func parse[T ~string](kind, raw string, set []T) (T, error) {
	normalized := T(strings.ToLower(strings.TrimSpace(raw)))
	if member(normalized, set) {
		return normalized, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
