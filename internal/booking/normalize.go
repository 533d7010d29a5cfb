package booking

import (
	"errors"
	"strings"
	"unicode"
)

var ErrPhoneUnparseable = errors.New("phone number cannot be normalized")

// NormalizeName title-cases each word of a caller name. Re-normalizing an
// already normalized name returns it unchanged.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	for i, f := range fields {
		runes := []rune(strings.ToLower(f))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone converts a spoken or formatted phone number to E.164.
// Bare 10-digit numbers are treated as US and get a +1 prefix. The result
// round-trips: normalizing an E.164 value is a no-op.
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 10:
		return "+1" + d, nil
	case len(d) >= 11 && len(d) <= 15:
		return "+" + d, nil
	default:
		return "", ErrPhoneUnparseable
	}
}
