// Package validate holds the credential validation policy shared by the
// sign-in path and the invitation acceptance flow. Violations are rejected
// before any network or store call is made.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	MaxEmailLength = 254

	MinPasswordLength = 8
	MaxPasswordLength = 72

	MinFullNameLength = 2
	MaxFullNameLength = 100

	specialChars = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"
)

// Error is a user-correctable input violation.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewError builds a validation error for a field.
func NewError(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email checks syntactic validity: parseable address with a dotted domain,
// at most MaxEmailLength characters.
func Email(email string) error {
	if email == "" {
		return NewError("email", "required")
	}
	if len(email) > MaxEmailLength {
		return NewError("email", "too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return NewError("email", "malformed")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return NewError("email", "malformed")
	}
	return nil
}

// Password checks the password policy: 8-72 characters with at least one
// lowercase letter, one uppercase letter, one digit and one special character.
func Password(password string) error {
	if password == "" {
		return NewError("password", "required")
	}
	if len(password) < MinPasswordLength {
		return NewError("password", "too short")
	}
	if len(password) > MaxPasswordLength {
		return NewError("password", "too long")
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	switch {
	case !lower:
		return NewError("password", "missing lowercase letter")
	case !upper:
		return NewError("password", "missing uppercase letter")
	case !digit:
		return NewError("password", "missing digit")
	case !special:
		return NewError("password", "missing special character")
	}
	return nil
}

// FullName checks a display name after trimming.
func FullName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return NewError("full_name", "required")
	}
	if len(trimmed) < MinFullNameLength {
		return NewError("full_name", "too short")
	}
	if len(trimmed) > MaxFullNameLength {
		return NewError("full_name", "too long")
	}
	return nil
}
