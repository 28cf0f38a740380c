// Package moderation screens outgoing chat messages before they are
// appended to a trip timeline. It blocks a configurable set of terms and
// rejects flooding patterns that make a group chat unreadable.
package moderation

import (
	"strings"
	"unicode"
)

// defaultTerms is the built-in blocklist. Terms containing a space are
// matched as phrases, single words are matched on word boundaries.
var defaultTerms = []string{
	"kill yourself",
	"kys",
}

// FilterResult is the outcome of screening one message.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string
}

// Filter holds the compiled blocklist. It is immutable after construction
// and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases []string
}

// NewFilter builds a filter with the built-in term list.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms builds a filter from an explicit term list. Terms with
// embedded whitespace become phrase matches, everything else a word match.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if strings.ContainsRune(t, ' ') {
			f.phrases = append(f.phrases, t)
		} else {
			f.words[t] = struct{}{}
		}
	}
	return f
}

// Check screens text and returns a blocking result on the first hit.
// Keyword checks run before flood checks.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)

	for _, p := range f.phrases {
		if strings.Contains(lower, p) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: p}
		}
	}

	for _, w := range tokenize(lower) {
		if _, ok := f.words[w]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: w}
		}
	}

	return f.checkFloodPatterns(text)
}

// tokenize splits lowercased text into words, stripping punctuation so
// "badword!" still matches the bare term. Letters and digits stay, the
// rest delimits.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
