package driver

import (
	"errors"
	"strings"
	"unicode"
)

var ErrInvalidPhone = errors.New("invalid phone number")

const (
	nationalLength      = 10
	trunkPrefixedLength = 11
	countryPrefixedLen  = 12
	countryCode         = "90"
)

// NormalizePhone converts Turkish local formats to E.164 and keeps numbers
// that already carry a leading plus.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}

		return -1
	}, trimmed)

	switch {
	case strings.HasPrefix(digits, countryCode) && len(digits) == countryPrefixedLen:
		return "+" + digits, nil
	case strings.HasPrefix(digits, "0") && len(digits) == trunkPrefixedLength:
		return "+9" + digits, nil
	case len(digits) == nationalLength:
		return "+" + countryCode + digits, nil
	case strings.HasPrefix(trimmed, "+") && digits != "":
		return trimmed, nil
	}

	return "", ErrInvalidPhone
}
