// Package oab formats attorney registration numbers and the case numbers found under them.
package oab

import (
	"fmt"
	"regexp"
	"strings"
)

// Width is the zero padded width of the numeric part of a registration number.
const Width = 6

// Format turns an index and a jurisdiction prefix into the portal's registration
// number, ex. Format(77826, "SP") == "077826SP".
func Format(index int, prefix string) string {
	return fmt.Sprintf("%0*d%s", Width, index, prefix)
}

var nonDigit = regexp.MustCompile(`[^0-9]`)

// SanitizeNumeric strips every non digit character.
func SanitizeNumeric(raw string) string {
	return nonDigit.ReplaceAllString(raw, "")
}

const (
	canonicalDigits = 20
	partialDigits   = 13
)

// CaseKey re-segments the digits of a case number into the portal's display format.
//
//	>= 20 digits: NNNNNNN-DD.AAAA.J.TR.OOOO
//	>= 13 digits: NNNNNNN-DD.AAAA
//	otherwise:    the bare digits
//
// Digits past a segmented prefix are kept after a trailing dot. The result only depends
// on the digit content of raw, so CaseKey(CaseKey(x)) == CaseKey(x).
func CaseKey(raw string) string {
	digits := SanitizeNumeric(raw)
	var key string
	var rest string
	switch {
	case len(digits) >= canonicalDigits:
		key = fmt.Sprintf(
			"%s-%s.%s.%s.%s.%s",
			digits[0:7], digits[7:9], digits[9:13], digits[13:14], digits[14:16], digits[16:20],
		)
		rest = digits[canonicalDigits:]
	case len(digits) >= partialDigits:
		key = fmt.Sprintf("%s-%s.%s", digits[0:7], digits[7:9], digits[9:13])
		rest = digits[partialDigits:]
	default:
		return digits
	}
	if rest != "" {
		key = strings.Join([]string{key, rest}, ".")
	}
	return key
}
