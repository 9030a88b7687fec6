package detector

import (
	"strings"
	"unicode"
)

var confusables = map[rune]rune{
	'0': 'O',
	'1': 'I',
	'2': 'Z',
	'5': 'S',
	'6': 'G',
	'8': 'B',
}

// FixPlate maps every character independently. Letters are upper-cased and
// digits kept. Any other character is looked up in the confusable table and
// passed through unchanged when absent, so a digit is never rewritten into a
// letter.
func FixPlate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			if sub, ok := confusables[r]; ok {
				b.WriteRune(sub)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
