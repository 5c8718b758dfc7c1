package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/minghua-center/minghua/internal/audit/domain"
	invitationdomain "github.com/minghua-center/minghua/internal/invitation/domain"
	invitationservice "github.com/minghua-center/minghua/internal/invitation/service"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/internal/role"
	sessiondomain "github.com/minghua-center/minghua/internal/session/domain"
)

type CreateInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type invitationView struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	InvitedBy  string  `json:"invited_by"`
	ExpiresAt  string  `json:"expires_at"`
	CreatedAt  string  `json:"created_at"`
	Accepted   bool    `json:"accepted"`
	AcceptedAt *string `json:"accepted_at,omitempty"`
}

func (s *Server) CreateInvitation(c *gin.Context) {
	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := currentIdentity(c)
	profile := currentProfile(c)
	if identity == nil || profile == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	target := profiledomain.Role(req.Role)
	resolution := role.Resolve(sessiondomain.Snapshot{User: identity, Profile: profile})
	if !resolution.CanInvite(target) {
		AbortWithError(c, ErrForbidden)
		return
	}

	invitation, err := s.invitations.Invite(c.Request.Context(), invitationservice.InviteRequest{
		Email:     req.Email,
		Role:      target,
		InvitedBy: identity.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.metrics.InvitationEvent("created")
	_ = s.auditSvc.Record(c.Request.Context(), &identity.ID, auditdomain.ActionInvitationCreated, "invitation", strPtr(invitation.ID.String()), map[string]any{
		"email": invitation.Email,
		"role":  string(invitation.Role),
	})

	c.JSON(http.StatusCreated, invitationViewOf(invitation))
}

func (s *Server) ListInvitations(c *gin.Context) {
	pending, err := s.invitations.ListPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]invitationView, 0, len(pending))
	for i := range pending {
		views = append(views, invitationViewOf(&pending[i]))
	}
	c.JSON(http.StatusOK, gin.H{"invitations": views})
}

type AcceptInvitationRequest struct {
	FullName        string `json:"full_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// AcceptInvitation runs the whole acceptance flow for the signed-in identity:
// verify that a live invitation matches their email, set the password, and
// finalize the profile.
func (s *Server) AcceptInvitation(c *gin.Context) {
	var req AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	identity := currentIdentity(c)
	token := currentToken(c)
	if identity == nil || token == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	flow := invitationservice.NewFlow(
		s.log,
		s.provider.WithToken(token),
		s.inviteRepo,
		invitationservice.NewLocalFinalizer(s.invitations),
		s.clock,
	)

	if err := flow.Verify(c.Request.Context()); err != nil {
		s.metrics.InvitationEvent("verify_failed")
		AbortWithError(c, err)
		return
	}

	result, err := flow.Submit(c.Request.Context(), invitationservice.SubmitRequest{
		FullName:        req.FullName,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		s.metrics.InvitationEvent("submit_failed")
		AbortWithError(c, err)
		return
	}

	s.metrics.InvitationEvent("accepted")
	var invitationID *string
	if invitation := flow.Invitation(); invitation != nil {
		invitationID = strPtr(invitation.ID.String())
	}
	_ = s.auditSvc.Record(c.Request.Context(), &identity.ID, auditdomain.ActionInvitationAccepted, "invitation", invitationID, map[string]any{
		"email": identity.Email,
	})

	c.JSON(http.StatusOK, gin.H{
		"status":       string(flow.Status()),
		"password_set": result.PasswordSet,
		"warning":      result.Warning,
	})
}

func invitationViewOf(inv *invitationdomain.Invitation) invitationView {
	view := invitationView{
		ID:        inv.ID.String(),
		Email:     inv.Email,
		Role:      string(inv.Role),
		InvitedBy: inv.InvitedBy,
		ExpiresAt: inv.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt: inv.CreatedAt.UTC().Format(time.RFC3339),
		Accepted:  inv.AcceptedAt != nil,
	}
	if inv.AcceptedAt != nil {
		view.AcceptedAt = strPtr(inv.AcceptedAt.UTC().Format(time.RFC3339))
	}
	return view
}

func strPtr(s string) *string { return &s }
