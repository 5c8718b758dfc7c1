package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	invitationdomain "github.com/minghua-center/minghua/internal/invitation/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	sessiondomain "github.com/minghua-center/minghua/internal/session/domain"
	"github.com/minghua-center/minghua/pkg/validate"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// errorResponse is the wire shape of failures. The finalize-invitation
// contract only promises an "error" string; "type" is extra.
type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// ErrorHandlingMiddleware maps domain errors onto HTTP statuses after the
// handler chain ran.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, errorResponse{Error: validationErr.Error(), Type: "validation_error"}
	}

	var fatalErr *profiledomain.FatalError
	if errors.As(err, &fatalErr) {
		return http.StatusForbidden, errorResponse{Error: "account inactive or invalid", Type: "forbidden"}
	}

	switch {
	case errors.Is(err, sessiondomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: sessiondomain.ErrRateLimited.Error(), Type: "rate_limited"}
	case errors.Is(err, sessiondomain.ErrInvalidCredentials),
		errors.Is(err, identitydomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: sessiondomain.ErrInvalidCredentials.Error(), Type: "unauthorized"}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identitydomain.ErrNoSession),
		errors.Is(err, identitydomain.ErrSessionExpired),
		errors.Is(err, invitationdomain.ErrNotSignedIn),
		errors.Is(err, invitationdomain.ErrSessionExpired):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized", Type: "unauthorized"}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, identitydomain.ErrReauthenticationRequired):
		return http.StatusForbidden, errorResponse{Error: "forbidden", Type: "forbidden"}
	case errors.Is(err, invitationdomain.ErrNoValidInvitation):
		return http.StatusNotFound, errorResponse{Error: invitationdomain.ErrNoValidInvitation.Error(), Type: "not_found"}
	case errors.Is(err, invitationdomain.ErrExpired):
		return http.StatusGone, errorResponse{Error: invitationdomain.ErrExpired.Error(), Type: "gone"}
	case errors.Is(err, invitationdomain.ErrAlreadyAccepted):
		return http.StatusConflict, errorResponse{Error: invitationdomain.ErrAlreadyAccepted.Error(), Type: "conflict"}
	case errors.Is(err, invitationdomain.ErrInvalidRole),
		errors.Is(err, invitationdomain.ErrEmailMismatch),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Type: "invalid_request"}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invitationdomain.ErrNotFound),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found", Type: "not_found"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error", Type: "internal_error"}
	}
}
