package domain

import "errors"

var (
	ErrNoValidInvitation = errors.New("no valid invitation")
	ErrNotFound          = errors.New("invitation not found")
	ErrExpired           = errors.New("invitation expired")
	ErrAlreadyAccepted   = errors.New("invitation already accepted")
	ErrInvalidRole       = errors.New("invitation role is not allowed")
	ErrEmailMismatch     = errors.New("invitation email does not match")
	ErrNotSignedIn       = errors.New("a confirmed sign-in is required to accept an invitation")
	ErrSessionExpired    = errors.New("session expired, sign in again to continue")
)
