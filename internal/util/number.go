package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reAllSpaces    = regexp.MustCompile(`\s+`)
	reThousandsDot = regexp.MustCompile(`\.(\d{3})`)
)

// ParseNumber parses a spreadsheet cell in pt-BR or plain notation.
// "1.234,56" -> 1234.56, "12,5" -> 12.5, "7" -> 7. Dots preceding a group of
// three digits are treated as thousands separators; a decimal comma becomes a
// dot. Anything unparsable or non-finite yields nil.
func ParseNumber(input string) *float64 {
	s := reAllSpaces.ReplaceAllString(strings.ReplaceAll(input, " ", ""), "")
	if s == "" {
		return nil
	}

	s = reThousandsDot.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", ".")

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	return &parsed
}

// ParsePositive is ParseNumber restricted to values > 0.
func ParsePositive(input string) *float64 {
	v := ParseNumber(input)
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}
