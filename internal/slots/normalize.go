package slots

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case, diacritics and whitespace so "São  Paulo" and
// "sao paulo" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Equal reports whether two slot values are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

var placeholders = map[string]bool{
	"unknown":         true,
	"there":           true,
	"clean_city_name": true,
	"today":           true,
	"tomorrow":        true,
	"tonight":         true,
	"yesterday":       true,
	"now":             true,
	"here":            true,
	"n/a":             true,
	"na":              true,
	"none":            true,
	"null":            true,
	"nil":             true,
	"undefined":       true,
	"city":            true,
	"the city":        true,
	"my city":         true,
	"destination":     true,
	"location":        true,
	"place":           true,
	"somewhere":       true,
	"anywhere":        true,
	"everywhere":      true,
	"tbd":             true,
	"tba":             true,
	"this weekend":    true,
	"next week":       true,
	"?":               true,
	"-":               true,
}

// IsPlaceholder reports whether v is a filler token a model emits when it has
// no real value.
func IsPlaceholder(v string) bool {
	n := Normalize(v)
	return n == "" || placeholders[n]
}
