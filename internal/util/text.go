package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reNonAlnum = regexp.MustCompile(`[^A-Z0-9 ]+`)

	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// StripDiacritics removes combining marks ("AÇO" -> "ACO", "Nº" stays).
func StripDiacritics(input string) string {
	out, _, err := transform.String(deaccent, input)
	if err != nil {
		return input
	}
	return out
}

// NormalizeText uppercases, strips diacritics and collapses whitespace while
// keeping punctuation. This is the form the material classifier and process
// router work on, where tokens like "40X40X1.2", "Ø" and "#304" matter.
func NormalizeText(input string) string {
	s := StripDiacritics(input)
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, " ", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeHeaderCell reduces a header cell to bare uppercase tokens:
// diacritics stripped, punctuation removed, whitespace collapsed.
func NormalizeHeaderCell(input string) string {
	s := NormalizeText(input)
	s = strings.NewReplacer("×", "X", "*", "X").Replace(s)
	s = reNonAlnum.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize splits a normalized header cell into its tokens.
func Tokenize(input string) []string {
	return strings.Fields(NormalizeHeaderCell(input))
}
