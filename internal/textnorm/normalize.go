// Package textnorm normalizes practice text for comparison and display.
//
// Recognized speech and expected text go through the same pipeline before
// any scoring: lowercasing, punctuation stripping and whitespace collapsing.
// The comparison form additionally treats apostrophes as word separators
// (l'école → "l ecole") and strips combining accents (é→e, ç→c) so that
// near-miss ASR output still lines up. The display form keeps accents and
// elisions intact ("m'appelle" stays one word) because it is what the
// learner sees next to their score.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Apostrophe variants used in French elisions.
const apostrophes = "'’ʼ"

// stripAccents decomposes to NFD and removes combining marks.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '"', '«', '»', '-', '—', '–', '(', ')', '[', ']':
		return true
	}
	return false
}

func base(text string, splitApostrophes bool) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case strings.ContainsRune(apostrophes, r):
			if splitApostrophes {
				b.WriteRune(' ')
			} else {
				b.WriteRune('\'')
			}
		case isPunct(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Comparison returns the accent-stripped, apostrophe-split normalized form
// used for all similarity computations.
func Comparison(text string) string {
	lowered := base(text, true)
	out, _, err := transform.String(stripAccents, lowered)
	if err != nil {
		// Transform on valid UTF-8 does not fail; fall back untouched.
		return lowered
	}
	return out
}

// Display returns the normalized form with accents and elisions preserved,
// used for per-word feedback shown to the learner.
func Display(text string) string {
	return base(text, false)
}

// Words splits a normalized string into its word tokens.
func Words(normalized string) []string {
	return strings.Fields(normalized)
}
