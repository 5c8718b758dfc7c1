package domain

import "context"

// UpdateUserRequest carries mutable identity attributes.
type UpdateUserRequest struct {
	Password string
}

// Provider is the identity provider contract consumed by the session core.
// GetSession returns (nil, nil) when no session is held.
type Provider interface {
	GetSession(ctx context.Context) (*Identity, error)
	OnAuthStateChange(fn func(event AuthEvent, identity *Identity)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, req UpdateUserRequest) error
	GetUser(ctx context.Context) (*Identity, error)
}
