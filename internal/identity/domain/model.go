// Package domain contains core types for the identity provider.
package domain

import "time"

// Identity is the authenticated principal as known by the provider.
type Identity struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time
	LastSignInAt     *time.Time
}

// AuthEvent names an auth-state change emitted by the provider.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)
