// Package contentfilter screens participant-provided text for inappropriate
// content. The default implementation is a wordlist matcher with leetspeak
// normalization; production deployments can plug in a smarter classifier.
package contentfilter

import "strings"

// Filter decides whether a piece of user-provided text is acceptable.
type Filter interface {
	Flag(text string) bool
}

// leetRunes maps common digit substitutions back to letters before matching.
var leetRunes = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
}

// defaultBlocklist is intentionally small; operators supply their own list.
var defaultBlocklist = []string{
	"admin",
	"moderator",
	"bitch",
	"fuck",
	"shit",
	"ass",
	"nazi",
}

// Wordlist flags text containing any blocked word after normalization.
type Wordlist struct {
	words []string
}

// NewWordlist builds a filter from the given blocked words. Words are matched
// as substrings of the normalized input.
func NewWordlist(words []string) *Wordlist {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		if w = Normalize(w); w != "" {
			normalized = append(normalized, w)
		}
	}
	return &Wordlist{words: normalized}
}

// NewDefault returns a wordlist filter with the built-in blocklist.
func NewDefault() *Wordlist {
	return NewWordlist(defaultBlocklist)
}

// Flag reports whether the normalized text contains a blocked word.
func (f *Wordlist) Flag(text string) bool {
	normalized := Normalize(text)
	for _, w := range f.words {
		if strings.Contains(normalized, w) {
			return true
		}
	}
	return false
}

// Normalize lowercases the input, undoes common leetspeak substitutions and
// strips separator characters, so "n4z1" and "n-a-z-i" match "nazi".
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if mapped, ok := leetRunes[r]; ok {
			r = mapped
		}
		switch r {
		case ' ', '-', '_', '.', '*':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
