package aicore

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// zeroWidthChars maps Unicode zero-width and invisible characters used
// for obfuscation.
var zeroWidthChars = strings.NewReplacer(
	"\u200b", " ", // zero-width space
	"\u200c", " ", // zero-width non-joiner
	"\u200d", " ", // zero-width joiner
	"\ufeff", " ", // zero-width no-break space (BOM)
	"\u2060", " ", // word joiner
	"\u180e", " ", // Mongolian vowel separator
	"\u00ad", "", // soft hyphen (removed, not replaced)
)

// SanitizeMessage prepares user input for logging and prompting: strips
// zero-width characters, applies NFKC normalization (fullwidth Latin,
// mathematical alphanumerics, ligatures), and drops control characters
// other than newline and tab.
func SanitizeMessage(s string) string {
	cleaned := zeroWidthChars.Replace(s)
	cleaned = norm.NFKC.String(cleaned)

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
