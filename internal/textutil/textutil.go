// Package textutil provides the text normalization shared by matching code.
// Raw user text is always preserved upstream; these helpers produce the
// lowercased, diacritic-free form heuristics match against.
package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, drops combining marks, and recomposes,
// so "opción" matches "opcion".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, and trims surrounding space.
func Normalize(s string) string {
	lowered := strings.ToLower(s)
	out, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		return strings.TrimSpace(lowered)
	}
	return strings.TrimSpace(out)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Squash normalizes and additionally collapses every non-alphanumeric run
// into a single space. Used for token-overlap scoring.
func Squash(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(Normalize(s), " "))
}

// Option phrasings like "2", "opcion 3", "la 1".
var optionPattern = regexp.MustCompile(`\b(?:opcion|opt|la|el)?\s*([1-8])\b`)

// ExtractOptionNumber pulls a bare option number in [1,8] out of the text.
func ExtractOptionNumber(text string) (int, bool) {
	m := optionPattern.FindStringSubmatch(Normalize(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
