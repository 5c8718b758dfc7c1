package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/minghua-center/minghua/internal/invitation/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, invitation *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repo) FindValidByEmail(ctx context.Context, email string, now time.Time) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).
		Where("email = ? AND accepted_at IS NULL AND expires_at > ?", email, now).
		Order("created_at DESC").
		First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoValidInvitation
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repo) ListPending(ctx context.Context, now time.Time) ([]domain.Invitation, error) {
	var invitations []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("accepted_at IS NULL AND expires_at > ?", now).
		Order("created_at DESC").
		Find(&invitations).Error
	return invitations, err
}

func (r *repo) MarkAccepted(ctx context.Context, id snowflake.ID, at time.Time) error {
	tx := r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("id = ? AND accepted_at IS NULL", id).
		Updates(map[string]any{"accepted_at": at, "updated_at": at})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrAlreadyAccepted
	}
	return nil
}
