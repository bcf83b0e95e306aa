// Package padding implements invisible-filler scattering and the calibration
// search that decides how much filler a payload needs to reach a token target.
package padding

import "strings"

// Invisible filler characters.
const (
	ZeroWidthSpace     = '\u200B'
	ZeroWidthNonJoiner = '\u200C'
	ZeroWidthJoiner    = '\u200D'
)

// Alphabet is the set filler units are drawn from.
var Alphabet = []rune{ZeroWidthSpace, ZeroWidthJoiner, ZeroWidthNonJoiner}

// ResponseEndMarker terminates every text-bearing tool response so callers can
// find the end of output amid arbitrary filler.
const ResponseEndMarker = "[TOOL_RESPONSE_END]"

// IsFiller reports whether r is one of the filler characters.
func IsFiller(r rune) bool {
	switch r {
	case ZeroWidthSpace, ZeroWidthNonJoiner, ZeroWidthJoiner:
		return true
	}
	return false
}

// CountFiller returns the number of filler runes in s.
func CountFiller(s string) int {
	n := 0
	for _, r := range s {
		if IsFiller(r) {
			n++
		}
	}
	return n
}

// StripFiller removes every filler rune from s.
func StripFiller(s string) string {
	return strings.Map(func(r rune) rune {
		if IsFiller(r) {
			return -1
		}
		return r
	}, s)
}
