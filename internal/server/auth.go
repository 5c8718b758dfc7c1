package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/minghua-center/minghua/internal/audit/domain"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/internal/role"
	sessiondomain "github.com/minghua-center/minghua/internal/session/domain"
	"github.com/minghua-center/minghua/pkg/validate"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type identityView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionView struct {
	User        identityView           `json:"user"`
	Profile     *profiledomain.Profile `json:"profile"`
	Permissions map[string]bool        `json:"permissions"`
}

// Login is the server twin of the client sign-in path: the same validation
// policy and attempt ledger run here because the client-side ones are not a
// security boundary.
func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	email := validate.NormalizeEmail(req.Email)
	if req.Password == "" {
		s.metrics.SignInAttempt("validation")
		AbortWithError(c, validate.NewError("password", "required"))
		return
	}
	if err := validate.Email(email); err != nil {
		s.metrics.SignInAttempt("validation")
		AbortWithError(c, err)
		return
	}
	if err := validate.Password(req.Password); err != nil {
		s.metrics.SignInAttempt("validation")
		AbortWithError(c, err)
		return
	}

	if !s.ledger.Allow(email) {
		s.metrics.SignInAttempt("rate_limited")
		AbortWithError(c, sessiondomain.ErrRateLimited)
		return
	}

	identity, rawToken, expiresAt, err := s.provider.SignInToken(c.Request.Context(), email, req.Password)
	if err != nil {
		s.metrics.SignInAttempt("rejected")
		_ = s.auditSvc.Record(c.Request.Context(), nil, auditdomain.ActionLoginFailed, "user", nil, map[string]any{
			"email": email,
		})
		if !errors.Is(err, identitydomain.ErrInvalidCredentials) {
			s.log.Error("sign-in failed", zap.Error(err))
		}
		AbortWithError(c, sessiondomain.ErrInvalidCredentials)
		return
	}
	s.ledger.Reset(email)
	s.metrics.SignInAttempt("ok")

	profile, err := s.resolveProfile(c, identity)
	if err != nil {
		var fatal *profiledomain.FatalError
		switch {
		case errors.As(err, &fatal):
			// A missing row is expected for invited users who have not
			// finished acceptance yet; their session stands so the accept
			// endpoint can finalize the profile.
			if fatal.Reason == "missing row" && s.hasOpenInvitation(c, email) {
				profile = nil
				break
			}
			// Any other integrity failure: never hand out a session.
			if revokeErr := s.provider.RevokeToken(c.Request.Context(), rawToken); revokeErr != nil {
				s.log.Warn("revoking session after fatal profile error failed", zap.Error(revokeErr))
			}
			_ = s.auditSvc.Record(c.Request.Context(), nil, auditdomain.ActionForcedSignOut, "user", &identity.ID, map[string]any{
				"reason": fatal.Reason,
			})
			s.metrics.ProfileFetch("fatal")
			AbortWithError(c, err)
			return
		default:
			// Transient store failure: the session stands, profile is absent.
			s.metrics.ProfileFetch("transient")
			profile = nil
		}
	} else {
		s.metrics.ProfileFetch("ok")
	}

	s.cookies.Set(c, rawToken, expiresAt)
	_ = s.auditSvc.Record(c.Request.Context(), &identity.ID, auditdomain.ActionLogin, "user", &identity.ID, map[string]any{
		"email": email,
	})

	c.JSON(http.StatusOK, s.sessionViewOf(identity, profile))
}

func (s *Server) Logout(c *gin.Context) {
	identity := currentIdentity(c)
	token := currentToken(c)

	if err := s.provider.RevokeToken(c.Request.Context(), token); err != nil {
		s.log.Warn("revoking session failed", zap.Error(err))
	}
	// The cookie is cleared even when revocation failed.
	s.cookies.Clear(c)

	if identity != nil {
		_ = s.auditSvc.Record(c.Request.Context(), &identity.ID, auditdomain.ActionLogout, "user", &identity.ID, nil)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	identity := currentIdentity(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.resolveProfile(c, identity)
	if err != nil {
		var fatal *profiledomain.FatalError
		if errors.As(err, &fatal) {
			if fatal.Reason == "missing row" && s.hasOpenInvitation(c, validate.NormalizeEmail(identity.Email)) {
				c.JSON(http.StatusOK, s.sessionViewOf(identity, nil))
				return
			}
			token := currentToken(c)
			if revokeErr := s.provider.RevokeToken(c.Request.Context(), token); revokeErr != nil {
				s.log.Warn("revoking session after fatal profile error failed", zap.Error(revokeErr))
			}
			s.cookies.Clear(c)
			_ = s.auditSvc.Record(c.Request.Context(), nil, auditdomain.ActionForcedSignOut, "user", &identity.ID, map[string]any{
				"reason": fatal.Reason,
			})
			AbortWithError(c, err)
			return
		}
		profile = nil
	}

	c.JSON(http.StatusOK, s.sessionViewOf(identity, profile))
}

func (s *Server) hasOpenInvitation(c *gin.Context, email string) bool {
	_, err := s.inviteRepo.FindValidByEmail(c.Request.Context(), email, s.clock.Now())
	return err == nil
}

func (s *Server) resolveProfile(c *gin.Context, identity *identitydomain.Identity) (*profiledomain.Profile, error) {
	row, err := s.profiles.FindByID(c.Request.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrNotFound) {
			return nil, &profiledomain.FatalError{Reason: "missing row"}
		}
		return nil, err
	}
	return profiledomain.Parse(row, identity.ID)
}

func (s *Server) sessionViewOf(identity *identitydomain.Identity, profile *profiledomain.Profile) sessionView {
	resolution := role.Resolve(sessiondomain.Snapshot{
		User:    identity,
		Profile: profile,
	})
	return sessionView{
		User:    identityView{ID: identity.ID, Email: identity.Email},
		Profile: profile,
		Permissions: map[string]bool{
			"is_owner":            resolution.IsOwner(),
			"is_admin":            resolution.IsAdmin(),
			"is_officer":          resolution.IsOfficer(),
			"is_admin_or_owner":   resolution.IsAdminOrOwner(),
			"is_active":           resolution.IsActive(),
			"can_manage_users":    resolution.CanManageUsers(),
			"can_delete":          resolution.CanDelete(),
			"can_view_audit_logs": resolution.CanViewAuditLogs(),
		},
	}
}
