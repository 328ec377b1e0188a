package chat

import (
	"html"
	"strings"
)

// MaxBodyLength is the longest escaped body, in characters, kept before
// truncation.
const MaxBodyLength = 1000

// TruncationMarker is appended to bodies cut at MaxBodyLength.
const TruncationMarker = "..."

// Sanitize escapes markup-significant characters, truncates the result to
// MaxBodyLength characters and trims surrounding whitespace. A cut never
// splits a character entity.
func Sanitize(body string) string {
	if body == "" {
		return ""
	}

	escaped := html.EscapeString(body)
	runes := []rune(escaped)
	if len(runes) > MaxBodyLength {
		cut := runes[:MaxBodyLength]
		if amp := lastIndex(cut, '&'); amp >= 0 && lastIndex(cut[amp:], ';') < 0 {
			cut = cut[:amp]
		}
		escaped = string(cut) + TruncationMarker
	}

	return strings.TrimSpace(escaped)
}

func lastIndex(runes []rune, target rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == target {
			return i
		}
	}
	return -1
}
