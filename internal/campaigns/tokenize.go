package campaigns

import (
	"strings"
	"unicode/utf8"

	"github.com/gosimple/unidecode"
)

const (
	minWordLen = 2
	maxWordLen = 14
	minWords   = 3

	maxTitleLen = 80
	maxBrandLen = 40
	maxLinkLen  = 500
)

// Tokenize splits a brand message into playable words: whitespace separated,
// transliterated to ASCII, reduced to A-Z, uppercased and kept when 2-14
// letters long.
func Tokenize(message string) []string {
	var words []string
	for _, field := range strings.Fields(message) {
		ascii := unidecode.Unidecode(field)

		var b strings.Builder
		for _, r := range ascii {
			switch {
			case r >= 'a' && r <= 'z':
				b.WriteRune(r - 'a' + 'A')
			case r >= 'A' && r <= 'Z':
				b.WriteRune(r)
			}
		}

		if w := b.String(); len(w) >= minWordLen && len(w) <= maxWordLen {
			words = append(words, w)
		}
	}
	return words
}

// truncate trims whitespace and cuts s to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
