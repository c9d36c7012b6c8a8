package sentiment

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeText is the form a review takes before tokenization and cache
// lookup. NFKC folds full-width and compatibility characters, and every run of
// whitespace or control characters collapses to one space, so "great\r\n  food"
// and "great food" share a cache entry.
func normalizeText(text string) string {
	fields := strings.FieldsFunc(norm.NFKC.String(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	return strings.Join(fields, " ")
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}
