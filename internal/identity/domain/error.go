package domain

import "errors"

var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrAccountNotFound          = errors.New("account not found")
	ErrAccountExists            = errors.New("account already exists")
	ErrNoSession                = errors.New("no active session")
	ErrSessionExpired           = errors.New("session expired")
	ErrSamePassword             = errors.New("new password must differ from the current password")
	ErrReauthenticationRequired = errors.New("reauthentication required")
	ErrWeakPassword             = errors.New("password does not meet provider requirements")
)
