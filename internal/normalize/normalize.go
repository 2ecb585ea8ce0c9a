// Package normalize implements the core's deterministic Arabic text
// normalization (C1). It is a total, idempotent function: it never raises
// and never panics on arbitrary Unicode input.
package normalize

import (
	"strings"
	"unicode"
)

// Tatweel is the Arabic kashida character, stripped entirely.
const tatweel = 'ـ'

// alifMaqsura folds to yaa.
const alifMaqsura = 'ى'
const yaa = 'ي'
const bareAlif = 'ا'

// alifVariants fold to bareAlif. Ta Marbuta
// (U+0629) is deliberately absent here — it is preserved, never folded.
var alifVariants = map[rune]bool{
	'أ': true, // أ
	'إ': true, // إ
	'آ': true, // آ
}

// isDiacritic reports whether r is one of the combining Arabic diacritics
// (U+064B..U+0652) or the superscript alif (U+0670).
func isDiacritic(r rune) bool {
	if r >= 'ً' && r <= 'ْ' {
		return true
	}
	return r == 'ٰ'
}

// Text applies the ordered normalization transformations and returns the
// normalized string. Empty or whitespace-only input yields the empty
// string. Non-Arabic characters pass through unchanged except for the
// generic whitespace collapse in steps 6-7.
func Text(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch {
		case isDiacritic(r):
			continue // step 1
		case r == tatweel:
			continue // step 2
		case alifVariants[r]:
			b.WriteRune(bareAlif) // step 3
		case r == alifMaqsura:
			b.WriteRune(yaa) // step 4
		// step 5: Ta Marbuta (U+0629) falls through untouched below.
		case unicode.IsSpace(r):
			b.WriteRune(' ') // part of step 6, collapsed below
		default:
			b.WriteRune(r)
		}
	}

	collapsed := collapseSpaces(b.String())
	return strings.TrimSpace(collapsed)
}

// collapseSpaces reduces any run of spaces produced by the whitespace
// mapping above to a single ASCII space.
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
