package server

import (
	"github.com/gin-gonic/gin"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
)

const (
	ctxIdentityKey = "auth.identity"
	ctxTokenKey    = "auth.token"
	ctxProfileKey  = "auth.profile"
)

// RequireSession resolves the session cookie to an identity and stores it on
// the request context.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.cookies.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		identity, err := s.provider.AuthenticateToken(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(ctxIdentityKey, identity)
		c.Set(ctxTokenKey, token)
		c.Next()
	}
}

// RequireRole loads and validates the caller's profile, then checks the
// casbin policy for the resource/action pair.
func (s *Server) RequireRole(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		if identity == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		row, err := s.profiles.FindByID(c.Request.Context(), identity.ID)
		if err != nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		profile, err := profiledomain.Parse(row, identity.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		allowed, err := s.authz.Can(profile.Role, resource, action)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !allowed {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Set(ctxProfileKey, profile)
		c.Next()
	}
}

func currentIdentity(c *gin.Context) *identitydomain.Identity {
	value, ok := c.Get(ctxIdentityKey)
	if !ok {
		return nil
	}
	identity, _ := value.(*identitydomain.Identity)
	return identity
}

func currentToken(c *gin.Context) string {
	value, ok := c.Get(ctxTokenKey)
	if !ok {
		return ""
	}
	token, _ := value.(string)
	return token
}

func currentProfile(c *gin.Context) *profiledomain.Profile {
	value, ok := c.Get(ctxProfileKey)
	if !ok {
		return nil
	}
	profile, _ := value.(*profiledomain.Profile)
	return profile
}
