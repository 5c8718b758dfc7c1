package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("profile not found")

type Repository interface {
	FindByID(ctx context.Context, id string) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
}
