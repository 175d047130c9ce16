package content

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fixed slug to display-name table for the portal's sections. Slugs arrive
// from URLs without accents; the document store holds display names.
var categorySlugs = map[string]string{
	"politica":        "Política",
	"economia":        "Economía",
	"deportes":        "Deportes",
	"sociedad":        "Sociedad",
	"internacionales": "Internacionales",
	"cultura":         "Cultura",
	"espectaculos":    "Espectáculos",
	"tecnologia":      "Tecnología",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases and strips diacritics, so "Política" and "politica"
// compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

// NormalizeCategory maps a URL slug or free-form category name onto the
// display name used by the document store. Unknown values pass through
// unchanged so new sections degrade to exact-match behavior.
func NormalizeCategory(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if display, ok := categorySlugs[slug]; ok {
		return display
	}

	folded := Fold(raw)
	for s, display := range categorySlugs {
		if folded == s || folded == Fold(display) {
			return display
		}
	}

	return strings.TrimSpace(raw)
}

// NormalizeTag produces the canonical comparison form of a tag.
func NormalizeTag(raw string) string {
	return Fold(strings.TrimSpace(raw))
}

// TagsMatch reports whether any of the record's tags equals the wanted tag
// under case- and diacritic-insensitive comparison.
func TagsMatch(tags []string, wanted string) bool {
	target := NormalizeTag(wanted)
	for _, tag := range tags {
		if NormalizeTag(tag) == target {
			return true
		}
	}
	return false
}

// Categories lists every known section display name. Order is not
// guaranteed; callers needing order sort themselves.
func Categories() []string {
	out := make([]string, 0, len(categorySlugs))
	for _, display := range categorySlugs {
		out = append(out, display)
	}
	return out
}
