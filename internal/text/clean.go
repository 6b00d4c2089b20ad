// Package text prepares verse text for speech synthesis.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Level is a sanitization strength. Higher levels strip more characters.
type Level int

const (
	LevelCosmetic Level = iota + 1
	LevelRestricted
	LevelBare
)

// Levels lists sanitization levels in escalation order.
var Levels = []Level{LevelCosmetic, LevelRestricted, LevelBare}

func (l Level) String() string {
	switch l {
	case LevelCosmetic:
		return "cosmetic"
	case LevelRestricted:
		return "restricted"
	case LevelBare:
		return "bare"
	}
	return "unknown"
}

var punctuationVariants = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
)

// Brackets used as structural markers in verse sources, never spoken.
var directiveBrackets = map[rune]bool{
	'[': true, ']': true, '{': true, '}': true, '<': true, '>': true,
	'【': true, '】': true, '〔': true, '〕': true, '《': true, '》': true, '〈': true, '〉': true,
}

// Clean applies cosmetic normalization: NFKC, zero-width and format
// character removal, quote and dash folding, directive bracket removal and
// whitespace collapsing.
func Clean(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Cf, r) || directiveBrackets[r] {
			return -1
		}
		return r
	}, s)
	s = punctuationVariants.Replace(s)
	return collapse(s)
}

// Sanitize cleans s at the given level.
func Sanitize(s string, level Level) string {
	s = Clean(s)
	switch level {
	case LevelRestricted:
		s = strings.Map(func(r rune) rune {
			if isWord(r) || unicode.IsSpace(r) || strings.ContainsRune(basicPunctuation, r) {
				return r
			}
			return ' '
		}, s)
	case LevelBare:
		s = strings.Map(func(r rune) rune {
			if isWord(r) || unicode.IsSpace(r) {
				return r
			}
			return ' '
		}, s)
	}
	return collapse(s)
}

const basicPunctuation = `.,?!'"-:;()`

func isWord(r rune) bool {
	return unicode.Is(unicode.Hangul, r) || unicode.Is(unicode.Latin, r) || (r >= '0' && r <= '9')
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
