package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	MaxUsernameLength = 50
	MaxSymbolLength   = 10
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	symbolRegex   = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]*$`)
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateUsername checks length and allowed characters for a username.
func ValidateUsername(s string) error {
	if err := ValidateStringNotEmpty(s, "Username"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(s, MaxUsernameLength, "Username"); err != nil {
		return err
	}
	if !usernameRegex.MatchString(s) {
		return fmt.Errorf("%w: Username may only contain letters, numbers, dots, underscores and hyphens", ErrValidationFailed)
	}
	return nil
}

// ValidateSymbol checks that a normalized ticker symbol is plausible.
// Symbols are validated after NormalizeSymbol, so they are already uppercase.
func ValidateSymbol(s string) error {
	if err := ValidateStringNotEmpty(s, "Symbol"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(s, MaxSymbolLength, "Symbol"); err != nil {
		return err
	}
	if !symbolRegex.MatchString(s) {
		return fmt.Errorf("%w: Symbol ('%s') is not in the expected format (letters, digits, dots, hyphens)", ErrValidationFailed, s)
	}
	return nil
}
