package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns s in Unicode NFC form.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// Fold strips diacritics so "Beyoncé" becomes "Beyonce". Characters without an
// ASCII decomposition are kept as-is.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify lowercases value, folds accents, and collapses every run of
// characters other than ASCII letters and digits into delim. Leading and
// trailing delimiters are removed. An empty delim defaults to "-".
func Slugify(value, delim string) string {
	if delim == "" {
		delim = "-"
	}
	folded := strings.ToLower(Fold(strings.TrimSpace(value)))

	var b strings.Builder
	b.Grow(len(folded))
	pending := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteString(delim)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
