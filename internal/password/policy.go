package password

import (
	"strings"
	"unicode/utf8"
)

const (
	MinLength = 8
	MaxLength = 128
	// Symbols is the punctuation set that satisfies the symbol rule.
	Symbols = `!@#$%^&*(),.?":{}|<>`
)

// Result lists every rule the password broke, in rule order.
type Result struct {
	IsValid bool
	Errors  []string
}

// Validate checks composition rules. All failures are collected.
func Validate(pw string) Result {
	var errs []string
	n := utf8.RuneCountInString(pw)
	if n < MinLength {
		errs = append(errs, "Password must be at least 8 characters long")
	}
	if n > MaxLength {
		errs = append(errs, "Password must be less than 128 characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}
	if !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !symbol {
		errs = append(errs, "Password must contain at least one special character")
	}
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// First returns the first failure message, or "" when valid.
func (r Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}
