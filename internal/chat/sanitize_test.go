package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "hello", want: "hello"},
		{name: "markup", in: "<b>hi</b>", want: "&lt;b&gt;hi&lt;/b&gt;"},
		{name: "script", in: `<script>alert("x")</script>`, want: "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;"},
		{name: "ampersand and quote", in: "Tom & Jerry's", want: "Tom &amp; Jerry&#39;s"},
		{name: "surrounding whitespace", in: "  padded \n", want: "padded"},
		{name: "whitespace only", in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	got := Sanitize(strings.Repeat("a", 1500))
	assert.Equal(t, strings.Repeat("a", MaxBodyLength)+TruncationMarker, got)

	exact := strings.Repeat("b", MaxBodyLength)
	assert.Equal(t, exact, Sanitize(exact))
}

func TestSanitizeTruncationKeepsEntitiesWhole(t *testing.T) {
	// 998 plain characters followed by an entity that straddles the limit.
	got := Sanitize(strings.Repeat("a", 998) + "<tail")
	assert.Equal(t, strings.Repeat("a", 998)+TruncationMarker, got)
	assert.NotContains(t, got, "&l")
}

func TestSanitizeCountsCharactersNotBytes(t *testing.T) {
	got := Sanitize(strings.Repeat("한", 1200))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, MaxBodyLength+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(got))
}

func TestSanitizeNeverLeavesRawMarkup(t *testing.T) {
	inputs := []string{
		strings.Repeat("<>&\"'", 400),
		strings.Repeat("x", 997) + "&&&&",
		"<img src=x onerror=alert(1)>",
		strings.Repeat(" <", 600),
	}
	for _, in := range inputs {
		got := Sanitize(in)
		assert.NotContains(t, got, "<")
		assert.NotContains(t, got, ">")
		assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxBodyLength+len(TruncationMarker))
		for i := strings.IndexByte(got, '&'); i >= 0; {
			rest := got[i:]
			assert.Contains(t, rest, ";", "dangling entity in %q", got)
			next := strings.IndexByte(rest[1:], '&')
			if next < 0 {
				break
			}
			i += next + 1
		}
	}
}
