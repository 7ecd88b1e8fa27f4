package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTitleLength bounds the sanitized title used in paths and keys.
const MaxTitleLength = 100

var (
	disallowed = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Sanitize turns a title into a path-safe token: accents folded, anything but
// letters, digits and whitespace dropped, whitespace runs joined with "_".
func Sanitize(title string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		title,
	)
	if err != nil {
		folded = title
	}

	s := disallowed.ReplaceAllString(folded, "")
	s = strings.TrimSpace(s)
	s = whitespace.ReplaceAllString(s, "_")
	if len(s) > MaxTitleLength {
		s = strings.TrimRight(s[:MaxTitleLength], "_")
	}
	if s == "" {
		return UntitledTitle
	}
	return s
}
