// Package phone normalizes lead phone numbers so the same person typed two
// different ways keys to the same AI-assist flag and matches the same search.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// Normalize returns the E.164 form of raw, parsed against region when the
// number carries no country code. Unparseable input falls back to its digits.
func Normalize(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if region == "" {
		region = "BR"
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return Digits(raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Digits strips everything but decimal digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
