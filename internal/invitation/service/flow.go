package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/minghua-center/minghua/internal/clock"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	"github.com/minghua-center/minghua/internal/invitation/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/pkg/validate"
	"go.uber.org/zap"
)

// Status is the acceptance flow state: Verifying moves to Valid or Invalid;
// from Valid a submit moves through Submitting to Success or Failed.
type Status string

const (
	StatusVerifying  Status = "verifying"
	StatusValid      Status = "valid"
	StatusInvalid    Status = "invalid"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// FinalizeRequest is the payload of the finalize-invitation endpoint.
type FinalizeRequest struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	FullName     string             `json:"full_name"`
	Role         profiledomain.Role `json:"role"`
	InvitedBy    string             `json:"invited_by"`
	InvitationID string             `json:"invitation_id"`
	IsActive     bool               `json:"is_active"`
}

// Finalizer finalizes profile creation for an accepted invitation.
type Finalizer interface {
	Finalize(ctx context.Context, req FinalizeRequest) error
}

// SubmitRequest carries the acceptance form fields.
type SubmitRequest struct {
	FullName        string
	Password        string
	ConfirmPassword string
}

// SubmitResult reports whether the password was actually set; when it was
// not, Warning explains why the flow still went through.
type SubmitResult struct {
	PasswordSet bool
	Warning     string
}

// Flow is one invitation acceptance attempt for a signed-in identity.
type Flow struct {
	log         *zap.Logger
	provider    identitydomain.Provider
	invitations domain.Repository
	finalizer   Finalizer
	clock       clock.Clock

	mu         sync.Mutex
	status     Status
	identity   *identitydomain.Identity
	invitation *domain.Invitation
}

func NewFlow(log *zap.Logger, provider identitydomain.Provider, invitations domain.Repository, finalizer Finalizer, clk clock.Clock) *Flow {
	return &Flow{
		log:         log.Named("invitation.flow"),
		provider:    provider,
		invitations: invitations,
		finalizer:   finalizer,
		clock:       clk,
		status:      StatusVerifying,
	}
}

// Status returns the current flow state.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Invitation returns the captured invitation once the flow is Valid.
func (f *Flow) Invitation() *domain.Invitation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invitation
}

// Verify requires an authenticated identity with a confirmed email and an
// open invitation for that email. The newest-created invitation wins.
func (f *Flow) Verify(ctx context.Context) error {
	f.setStatus(StatusVerifying)

	identity, err := f.provider.GetUser(ctx)
	if err != nil || identity == nil || identity.EmailConfirmedAt == nil {
		f.setStatus(StatusInvalid)
		return domain.ErrNotSignedIn
	}

	invitation, err := f.invitations.FindValidByEmail(ctx, validate.NormalizeEmail(identity.Email), f.clock.Now())
	if err != nil {
		f.setStatus(StatusInvalid)
		if errors.Is(err, domain.ErrNoValidInvitation) {
			return domain.ErrNoValidInvitation
		}
		return err
	}

	f.mu.Lock()
	f.identity = identity
	f.invitation = invitation
	f.status = StatusValid
	f.mu.Unlock()
	return nil
}

// Submit validates the form, attempts the password change and finalizes the
// profile. A "must differ from current" password rejection is non-fatal:
// one-time-code sign-in paths pre-assign a throwaway password, so the flow
// continues and surfaces a warning instead.
func (f *Flow) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	f.mu.Lock()
	if f.status != StatusValid {
		f.mu.Unlock()
		return nil, domain.ErrNoValidInvitation
	}
	invitation := f.invitation
	f.status = StatusSubmitting
	f.mu.Unlock()

	if err := f.validateSubmit(req, invitation); err != nil {
		f.setStatus(StatusFailed)
		return nil, err
	}

	// Re-confirm the session did not expire mid-form.
	identity, err := f.provider.GetUser(ctx)
	if err != nil || identity == nil {
		f.setStatus(StatusFailed)
		return nil, domain.ErrSessionExpired
	}

	result := &SubmitResult{PasswordSet: true}
	if err := f.provider.UpdateUser(ctx, identitydomain.UpdateUserRequest{Password: req.Password}); err != nil {
		switch {
		case errors.Is(err, identitydomain.ErrReauthenticationRequired):
			f.setStatus(StatusFailed)
			return nil, identitydomain.ErrReauthenticationRequired
		case errors.Is(err, identitydomain.ErrNoSession), errors.Is(err, identitydomain.ErrSessionExpired):
			f.setStatus(StatusFailed)
			return nil, domain.ErrSessionExpired
		case errors.Is(err, identitydomain.ErrSamePassword):
			result.PasswordSet = false
			result.Warning = "your existing password was kept"
		default:
			result.PasswordSet = false
			result.Warning = "your password could not be updated; you can change it later"
			f.log.Debug("password update failed during acceptance", zap.Error(err))
		}
	}

	finalize := FinalizeRequest{
		ID:           identity.ID,
		Email:        identity.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         invitation.Role,
		InvitedBy:    invitation.InvitedBy,
		InvitationID: invitation.ID.String(),
		IsActive:     true,
	}
	if err := f.finalizer.Finalize(ctx, finalize); err != nil {
		f.setStatus(StatusFailed)
		return nil, err
	}

	f.setStatus(StatusSuccess)
	return result, nil
}

// validateSubmit fails fast on the first violation, in form order.
func (f *Flow) validateSubmit(req SubmitRequest, invitation *domain.Invitation) error {
	if err := validate.FullName(req.FullName); err != nil {
		return err
	}
	if err := validate.Password(req.Password); err != nil {
		return err
	}
	if req.ConfirmPassword != req.Password {
		return validate.NewError("confirm_password", "does not match")
	}
	if invitation == nil {
		return domain.ErrNoValidInvitation
	}
	if !invitation.Role.Valid() {
		return domain.ErrInvalidRole
	}
	return nil
}

func (f *Flow) setStatus(s Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}
