package credentials

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 100
)

const specialChars = `!@#$%^&*(),.?":{}|<>`

// ValidateStrength reports whether plain is 8-100 characters long and
// contains a lowercase letter, an uppercase letter, a digit and one of
// !@#$%^&*(),.?":{}|<>
func ValidateStrength(plain string) bool {
	n := utf8.RuneCountInString(plain)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range plain {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	return lower && upper && digit && special
}
