package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText trims input, drops control characters, folds whitespace runs into
// one space and cuts the result to maxRunes characters. maxRunes <= 0 keeps
// the full length.
func CleanText(input string, maxRunes int) string {
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	var b strings.Builder
	b.Grow(len(input))
	n := 0
	pendingSpace := false
	for _, r := range input {
		if unicode.IsSpace(r) {
			pendingSpace = n > 0
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace {
			if maxRunes > 0 && n+1 >= maxRunes {
				break
			}
			b.WriteByte(' ')
			n++
			pendingSpace = false
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
