package utils

import (
	"strings"
	"unicode"
)

// NormalizePlate returns the canonical form of a plate string: all whitespace
// removed and letters upper-cased. Registry lookups, approval keys and votes
// all use this form.
func NormalizePlate(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range plate {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// SamePlate reports whether two plate strings are equal after normalization.
func SamePlate(a, b string) bool {
	return NormalizePlate(a) == NormalizePlate(b)
}
