// Package dedup keeps a bot from repeating itself, first by exact comparison of
// normalized text, then by embedding similarity.
package dedup

import (
	"strings"
	"unicode"
)

// MaxNormalizedRunes bounds the normalized form.
const MaxNormalizedRunes = 400

// Normalize lowercases (Turkish rules, with dotless ı folded into i so "BIST" and
// "bist" match), drops emoji and punctuation, collapses whitespace and truncates
// to MaxNormalizedRunes runes.
func Normalize(text string) string {
	lower := strings.ReplaceAll(strings.ToLowerSpecial(unicode.TurkishCase, text), "ı", "i")
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	norm := strings.Join(fields, " ")
	if r := []rune(norm); len(r) > MaxNormalizedRunes {
		norm = strings.TrimSpace(string(r[:MaxNormalizedRunes]))
	}
	return norm
}

// IsExactDuplicate reports whether candidate normalizes equal to any of history.
func IsExactDuplicate(candidate string, history []string) bool {
	norm := Normalize(candidate)
	if norm == "" {
		return false
	}
	for _, h := range history {
		if Normalize(h) == norm {
			return true
		}
	}
	return false
}
