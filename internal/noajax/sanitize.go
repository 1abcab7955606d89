package noajax

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// entityPrefix matches a character reference at the start of a string.
var entityPrefix = regexp.MustCompile(`^&(?:[A-Za-z][A-Za-z0-9]*|#[0-9]+|#[xX][0-9A-Fa-f]+);`)

// SanitizeAction escapes an action identifier for use in extension point
// names and log output. It encodes & < > " and ' as HTML character
// references, leaves existing references to known entities intact, and
// returns "" for input that is not valid UTF-8.
func SanitizeAction(action string) string {
	if !utf8.ValidString(action) {
		return ""
	}

	var b strings.Builder
	b.Grow(len(action))
	for i := 0; i < len(action); i++ {
		c := action[i]
		switch c {
		case '&':
			if ref := entityPrefix.FindString(action[i:]); ref != "" && html.UnescapeString(ref) != ref {
				b.WriteString(ref)
				i += len(ref) - 1
				continue
			}
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#039;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
