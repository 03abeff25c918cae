package feed

import (
	"unicode"
	"unicode/utf8"
)

// emphasisMarker is the stray bold marker models like to emit as a word of
// its own.
const emphasisMarker = "**"

// SplitWords reconstructs whole words from an incremental text delta.
//
// The previous carry is prepended to delta and the result is split on runs of
// whitespace. Every token followed by whitespace is complete and returned in
// order. A trailing token with no whitespace after it is held back as the new
// carry; the carry is empty when the input ends on whitespace. An empty delta
// yields no words and leaves the carry untouched.
func SplitWords(carry, delta string) (words []string, newCarry string) {
	if delta == "" {
		return nil, carry
	}

	s := carry + delta
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}

	if start >= 0 {
		return words, s[start:]
	}
	return words, ""
}

// Sanitize drops tokens that carry no displayable content. Currently that is
// only the bare "**" emphasis marker.
func Sanitize(words []string) []string {
	out := words[:0:0]
	for _, w := range words {
		if w == emphasisMarker {
			continue
		}
		out = append(out, w)
	}
	return out
}

// CountWords returns the number of whitespace delimited words in s.
func CountWords(s string) int {
	n := 0
	in := false
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if unicode.IsSpace(r) {
			in = false
			continue
		}
		if !in {
			n++
			in = true
		}
	}
	return n
}
