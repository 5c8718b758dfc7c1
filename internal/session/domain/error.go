package domain

import "errors"

var (
	// ErrInvalidCredentials is returned for every provider sign-in failure.
	// The provider's own message is never surfaced, so callers cannot be
	// used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrRateLimited is returned when an email exceeded its attempt budget.
	ErrRateLimited = errors.New("too many sign-in attempts, try again later")
)
