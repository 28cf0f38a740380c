package moderation

import (
	"strings"
	"unicode"
)

// floodCheck pairs a detection function with metadata used for reporting.
type floodCheck struct {
	name  string
	match func(string) bool
}

// floodChecks is the ordered list applied by checkFloodPatterns. The first
// match wins.
var floodChecks = []floodCheck{
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

// hasCharFlood returns true if text contains 8 or more consecutive identical
// characters. Go's regexp package (RE2) does not support backreferences, so
// this is implemented as a simple linear scan which is both correct and fast.
func hasCharFlood(text string) bool {
	const threshold = 8

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood returns true if the same word appears 4 or more times
// consecutively (case-insensitive). Words are delimited by whitespace.
func hasWordFlood(text string) bool {
	const threshold = 4

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// checkFloodPatterns runs every flood check against text and returns a
// blocking FilterResult on the first match. If nothing matches, it returns
// a zero-value (non-blocking) FilterResult.
func (f *Filter) checkFloodPatterns(text string) FilterResult {
	for _, fc := range floodChecks {
		if fc.match(text) {
			return FilterResult{
				Blocked: true,
				Reason:  "flood_pattern",
				Term:    fc.name,
			}
		}
	}
	return FilterResult{}
}
