package parse

import (
	"strings"
	"unicode"
)

// Slugify normalizes a free-form centro name into a lowercase identifier:
// spaces collapse to single underscores and anything outside alphanumerics,
// dashes and underscores is dropped.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(strings.ToLower(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// DisplayName renders a slug or raw name for the UI: separators become
// spaces and each word is capitalized.
func DisplayName(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
