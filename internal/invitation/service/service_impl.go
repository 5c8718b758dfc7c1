// Package service implements invitation issuance and the server side of
// invitation acceptance, plus the client-side acceptance flow.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/invitation/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/pkg/validate"
	"go.uber.org/zap"
)

const DefaultTTL = 7 * 24 * time.Hour

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	profiles profiledomain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	ttl      time.Duration
}

func New(log *zap.Logger, repo domain.Repository, profiles profiledomain.Repository, genID *snowflake.Node, clk clock.Clock) *Service {
	return &Service{
		log:      log.Named("invitation.service"),
		repo:     repo,
		profiles: profiles,
		genID:    genID,
		clock:    clk,
		ttl:      DefaultTTL,
	}
}

// WithTTL overrides the invitation lifetime.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// InviteRequest describes a new invitation.
type InviteRequest struct {
	Email     string
	Role      profiledomain.Role
	InvitedBy string
}

// Invite issues an invitation for an email and role.
func (s *Service) Invite(ctx context.Context, req InviteRequest) (*domain.Invitation, error) {
	email := validate.NormalizeEmail(req.Email)
	if err := validate.Email(email); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	now := s.clock.Now()
	invitation := &domain.Invitation{
		ID:        s.genID.Generate(),
		Email:     email,
		Role:      req.Role,
		InvitedBy: strings.TrimSpace(req.InvitedBy),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, invitation); err != nil {
		return nil, err
	}
	s.log.Info("invitation issued",
		zap.String("email", email), zap.String("role", string(req.Role)))
	return invitation, nil
}

// ListPending returns open invitations.
func (s *Service) ListPending(ctx context.Context) ([]domain.Invitation, error) {
	return s.repo.ListPending(ctx, s.clock.Now())
}

// FinalizeAcceptance is the server side of invitation acceptance: it writes
// the profile row and stamps the invitation accepted, rejecting stale or
// mismatched requests.
func (s *Service) FinalizeAcceptance(ctx context.Context, req FinalizeRequest) error {
	invitationID, err := snowflake.ParseString(req.InvitationID)
	if err != nil {
		return domain.ErrNotFound
	}
	invitation, err := s.repo.FindByID(ctx, invitationID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if invitation.AcceptedAt != nil {
		return domain.ErrAlreadyAccepted
	}
	if !invitation.ExpiresAt.After(now) {
		return domain.ErrExpired
	}
	if !invitation.Role.Valid() || invitation.Role != req.Role {
		return domain.ErrInvalidRole
	}
	if validate.NormalizeEmail(req.Email) != invitation.Email {
		return domain.ErrEmailMismatch
	}
	if err := validate.FullName(req.FullName); err != nil {
		return err
	}

	fullName := strings.TrimSpace(req.FullName)
	profile := &profiledomain.Profile{
		ID:        req.ID,
		Email:     invitation.Email,
		FullName:  &fullName,
		Role:      invitation.Role,
		IsActive:  req.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return err
	}
	if err := s.repo.MarkAccepted(ctx, invitation.ID, now); err != nil {
		return err
	}
	s.log.Info("invitation accepted",
		zap.String("email", invitation.Email), zap.String("role", string(invitation.Role)))
	return nil
}
