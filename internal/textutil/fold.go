// Package textutil folds Spanish free text for matching: lower case, accents
// removed, punctuation collapsed to single spaces.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics ("Cuánto" → "cuanto"). ñ folds to n.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Normalize folds s and collapses every run of non-alphanumeric runes, except
// '_' and '-', into one space.
func Normalize(s string) string {
	f := Fold(s)
	var b strings.Builder
	b.Grow(len(f))
	space := false
	for _, r := range f {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// stopwords are dropped from search tokens.
var stopwords = map[string]bool{
	"de": true, "del": true, "la": true, "el": true, "los": true, "las": true,
	"un": true, "una": true, "y": true, "o": true, "en": true, "para": true,
	"con": true, "por": true, "al": true, "lo": true, "que": true,
}

// Tokens returns the normalized words of s, without stopwords and words
// shorter than two runes.
func Tokens(s string) []string {
	fields := strings.Fields(Normalize(s))
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ContainsWord reports whether the normalized text contains word as a whole word.
func ContainsWord(normalized, word string) bool {
	for _, f := range strings.Fields(normalized) {
		if f == word {
			return true
		}
	}
	return false
}
