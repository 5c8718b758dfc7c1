package domain

import (
	"context"

	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
)

// Service is the session lifecycle contract.
type Service interface {
	Initialize(ctx context.Context) error
	State() Snapshot
	Subscribe(fn func(Snapshot)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*identitydomain.Identity, error)
	SignOut(ctx context.Context) error
	Close()
}
