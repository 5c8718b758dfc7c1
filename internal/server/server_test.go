package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/minghua-center/minghua/internal/audit/domain"
	auditservice "github.com/minghua-center/minghua/internal/audit/service"
	"github.com/minghua-center/minghua/internal/authorization"
	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/config"
	"github.com/minghua-center/minghua/internal/identity/local"
	invitationdomain "github.com/minghua-center/minghua/internal/invitation/domain"
	invitationrepository "github.com/minghua-center/minghua/internal/invitation/repository"
	invitationservice "github.com/minghua-center/minghua/internal/invitation/service"
	"github.com/minghua-center/minghua/internal/observability/metrics"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	profilerepository "github.com/minghua-center/minghua/internal/profile/repository"
	"github.com/minghua-center/minghua/internal/session/ratelimit"
	"github.com/minghua-center/minghua/pkg/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serverFixture struct {
	engine   *gin.Engine
	provider *local.Provider
	profiles profiledomain.Repository
	clk      *clock.FakeClock
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&local.Account{},
		&local.Session{},
		&profiledomain.Profile{},
		&invitationdomain.Invitation{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	cfg := config.Config{
		Environment:       "test",
		SignInMaxAttempts: ratelimit.DefaultMaxAttempts,
		SignInWindow:      ratelimit.DefaultWindow,
		SignInMaxTracked:  ratelimit.DefaultMaxTracked,
	}

	provider := local.NewProvider(log, conn, node, clk)
	profiles := profilerepository.New(conn)
	inviteRepo := invitationrepository.New(conn)
	invitations := invitationservice.New(log, inviteRepo, profiles, node, clk)
	auditSvc := auditservice.New(log, conn, node, clk)
	authz, err := authorization.New(conn)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	srv := NewServer(ServerParams{
		Cfg:         cfg,
		Log:         log,
		Provider:    provider,
		Profiles:    profiles,
		Invitations: invitations,
		InviteRepo:  inviteRepo,
		AuditSvc:    auditSvc,
		Authz:       authz,
		Ledger:      newLedger(cfg, clk),
		Cookies:     NewCookieManager(cfg),
		Metrics:     metrics.New(registry),
		Clock:       clk,
	})

	engine := NewEngine(cfg, registry)
	registerRoutes(engine, srv)

	return &serverFixture{
		engine:   engine,
		provider: provider,
		profiles: profiles,
		clk:      clk,
	}
}

// seedStaff creates a confirmed account plus its profile row.
func (f *serverFixture) seedStaff(t *testing.T, email, password string, role profiledomain.Role) string {
	t.Helper()
	identity, err := f.provider.CreateAccount(context.Background(), local.CreateAccountRequest{
		Email:          email,
		Password:       password,
		EmailConfirmed: true,
	})
	require.NoError(t, err)

	name := "Test Staffer"
	require.NoError(t, f.profiles.Upsert(context.Background(), &profiledomain.Profile{
		ID:       identity.ID,
		Email:    email,
		FullName: &name,
		Role:     role,
		IsActive: true,
	}))
	return identity.ID
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == DefaultCookieName {
			return cookie
		}
	}
	t.Fatal("login response carries no session cookie")
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoginAndMe(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "officer@example.com", "Str0ng!pass", profiledomain.RoleOfficer)

	cookie := f.login(t, "officer@example.com", "Str0ng!pass")

	rec := f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	permissions, ok := body["permissions"].(map[string]any)
	require.True(t, ok, "me response carries permissions")
	require.Equal(t, true, permissions["is_officer"])
	require.Equal(t, false, permissions["is_admin"])
	require.Equal(t, false, permissions["can_view_audit_logs"])
}

func TestLoginRejectsBadCredentialsGenerically(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "officer@example.com", "Str0ng!pass", profiledomain.RoleOfficer)

	rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "officer@example.com", "password": "Wrong1!pass"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid email or password", decodeBody(t, rec)["error"])

	// Unknown account reads identically.
	rec = f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "ghost@example.com", "password": "Wrong1!pass"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid email or password", decodeBody(t, rec)["error"])
}

func TestLoginValidationRejectedBeforeProvider(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "not-an-email", "password": "Str0ng!pass"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "a@example.com", "password": "weak"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "officer@example.com", "Str0ng!pass", profiledomain.RoleOfficer)

	for i := 0; i < ratelimit.DefaultMaxAttempts; i++ {
		rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "officer@example.com", "password": "Wrong1!pass"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "officer@example.com", "password": "Wrong1!pass"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Even the right password is throttled now.
	rec = f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "officer@example.com", "password": "Str0ng!pass"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	f.clk.Advance(ratelimit.DefaultWindow + time.Minute)
	rec = f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "officer@example.com", "password": "Str0ng!pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLoginWithoutProfileIsFatal(t *testing.T) {
	f := newServerFixture(t)
	_, err := f.provider.CreateAccount(context.Background(), local.CreateAccountRequest{
		Email:          "orphan@example.com",
		Password:       "Str0ng!pass",
		EmailConfirmed: true,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "orphan@example.com", "password": "Str0ng!pass"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	for _, cookie := range rec.Result().Cookies() {
		require.NotEqual(t, DefaultCookieName, cookie.Name, "no session cookie on a fatal profile failure")
	}
}

func TestLoginInactiveProfileIsFatal(t *testing.T) {
	f := newServerFixture(t)
	id := f.seedStaff(t, "inactive@example.com", "Str0ng!pass", profiledomain.RoleOfficer)
	name := "Test Staffer"
	require.NoError(t, f.profiles.Upsert(context.Background(), &profiledomain.Profile{
		ID:       id,
		Email:    "inactive@example.com",
		FullName: &name,
		Role:     profiledomain.RoleOfficer,
		IsActive: false,
	}))

	rec := f.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "inactive@example.com", "password": "Str0ng!pass"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMeRequiresSession(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "officer@example.com", "Str0ng!pass", profiledomain.RoleOfficer)
	cookie := f.login(t, "officer@example.com", "Str0ng!pass")

	rec := f.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvitationAuthorization(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "officer@example.com", "Str0ng!pass", profiledomain.RoleOfficer)
	f.seedStaff(t, "admin@example.com", "Str0ng!pass", profiledomain.RoleAdmin)

	officer := f.login(t, "officer@example.com", "Str0ng!pass")
	rec := f.do(t, http.MethodPost, "/api/invitations", gin.H{"email": "x@example.com", "role": "officer"}, officer)
	require.Equal(t, http.StatusForbidden, rec.Code, "officers may not invite")

	admin := f.login(t, "admin@example.com", "Str0ng!pass")
	rec = f.do(t, http.MethodPost, "/api/invitations", gin.H{"email": "x@example.com", "role": "admin"}, admin)
	require.Equal(t, http.StatusForbidden, rec.Code, "admins may only invite officers")

	rec = f.do(t, http.MethodPost, "/api/invitations", gin.H{"email": "x@example.com", "role": "officer"}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/invitations", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	invitations, ok := decodeBody(t, rec)["invitations"].([]any)
	require.True(t, ok)
	require.Len(t, invitations, 1)
}

func TestInvitationAcceptanceEndToEnd(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "owner@example.com", "Str0ng!pass", profiledomain.RoleOwner)
	owner := f.login(t, "owner@example.com", "Str0ng!pass")

	rec := f.do(t, http.MethodPost, "/api/invitations", gin.H{"email": "newbie@example.com", "role": "officer"}, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The invited user gets a confirmed account with a throwaway password
	// and signs in before accepting; there is no profile row yet.
	_, err := f.provider.CreateAccount(context.Background(), local.CreateAccountRequest{
		Email:          "newbie@example.com",
		Password:       "Tempor4ry!pw",
		EmailConfirmed: true,
	})
	require.NoError(t, err)
	invitee := f.login(t, "newbie@example.com", "Tempor4ry!pw")

	rec = f.do(t, http.MethodPost, "/api/invitations/accept", gin.H{
		"full_name":        "New Officer",
		"password":         "Fresh1!pass",
		"confirm_password": "Fresh1!pass",
	}, invitee)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "success", body["status"])
	require.Equal(t, true, body["password_set"])

	// The profile now exists and the new password works.
	session := f.login(t, "newbie@example.com", "Fresh1!pass")
	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	permissions := decodeBody(t, rec)["permissions"].(map[string]any)
	require.Equal(t, true, permissions["is_officer"])

	// A second acceptance attempt finds no open invitation.
	rec = f.do(t, http.MethodPost, "/api/invitations/accept", gin.H{
		"full_name":        "New Officer",
		"password":         "Fresh1!pass",
		"confirm_password": "Fresh1!pass",
	}, session)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcceptWithSamePasswordStillSucceeds(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "owner@example.com", "Str0ng!pass", profiledomain.RoleOwner)
	owner := f.login(t, "owner@example.com", "Str0ng!pass")

	rec := f.do(t, http.MethodPost, "/api/invitations", gin.H{"email": "keeper@example.com", "role": "officer"}, owner)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, err := f.provider.CreateAccount(context.Background(), local.CreateAccountRequest{
		Email:          "keeper@example.com",
		Password:       "Tempor4ry!pw",
		EmailConfirmed: true,
	})
	require.NoError(t, err)
	invitee := f.login(t, "keeper@example.com", "Tempor4ry!pw")

	rec = f.do(t, http.MethodPost, "/api/invitations/accept", gin.H{
		"full_name":        "Password Keeper",
		"password":         "Tempor4ry!pw",
		"confirm_password": "Tempor4ry!pw",
	}, invitee)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "success", body["status"])
	require.Equal(t, false, body["password_set"])
	require.NotEmpty(t, body["warning"])
}

func TestAuditLogsVisibilityAndContent(t *testing.T) {
	f := newServerFixture(t)
	f.seedStaff(t, "owner@example.com", "Str0ng!pass", profiledomain.RoleOwner)
	f.seedStaff(t, "officer@example.com", "Str0ng!pass", profiledomain.RoleOfficer)

	officer := f.login(t, "officer@example.com", "Str0ng!pass")
	rec := f.do(t, http.MethodGet, "/api/audit-logs", nil, officer)
	require.Equal(t, http.StatusForbidden, rec.Code)

	owner := f.login(t, "owner@example.com", "Str0ng!pass")
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/audit-logs?action=%s", auditdomain.ActionLogin), nil, owner)
	require.Equal(t, http.StatusOK, rec.Code)
	logs, ok := decodeBody(t, rec)["audit_logs"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, logs, "logins leave an audit trail")
}
