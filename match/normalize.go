package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// foldTransformer narrows fullwidth/halfwidth forms and drops the small set
// of Unicode marks that would otherwise survive case folding untouched;
// mapping runes is cheaper to hand-roll for the single ё→е rule below.
var foldTransformer = transform.Chain(width.Fold, runes.Remove(runes.In(unicode.Mn)))

// Normalize implements the comparison form for submitted and canonical
// answers: lowercase, fullwidth-fold, strip leading/trailing whitespace,
// collapse internal whitespace runs to a single space, replace comma with
// period whenever the string contains a digit, and fold ё/Ё to е.
// Normalize(Normalize(x)) == Normalize(x) for all x.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = foldYo(folded)

	if strings.ContainsAny(folded, "0123456789") {
		folded = strings.ReplaceAll(folded, ",", ".")
	}

	return collapseWhitespace(folded)
}

func foldYo(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 'ё' {
			r = 'е'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
