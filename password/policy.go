package password

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrPolicy is wrapped by every strength-policy violation.
var ErrPolicy = errors.New("password policy violation")

const minLength = 8

// CheckStrength rejects passwords shorter than 8 characters or missing an
// uppercase letter, a lowercase letter, a digit, or a symbol. The first
// failing rule is reported. This is a usability gate ahead of hashing, not
// a security control on its own.
func CheckStrength(plaintext string) error {
	runes := []rune(plaintext)
	if len(runes) < minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicy, minLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	switch {
	case !upper:
		return fmt.Errorf("%w: must contain an uppercase letter", ErrPolicy)
	case !lower:
		return fmt.Errorf("%w: must contain a lowercase letter", ErrPolicy)
	case !digit:
		return fmt.Errorf("%w: must contain a digit", ErrPolicy)
	case !symbol:
		return fmt.Errorf("%w: must contain a symbol", ErrPolicy)
	}
	return nil
}
