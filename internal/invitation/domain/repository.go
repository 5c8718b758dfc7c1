package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, invitation *Invitation) error
	FindByID(ctx context.Context, id snowflake.ID) (*Invitation, error)
	// FindValidByEmail returns the newest-created open invitation for the
	// email, or ErrNoValidInvitation.
	FindValidByEmail(ctx context.Context, email string, now time.Time) (*Invitation, error)
	ListPending(ctx context.Context, now time.Time) ([]Invitation, error)
	MarkAccepted(ctx context.Context, id snowflake.ID, at time.Time) error
}
