package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/minghua-center/minghua/internal/clock"
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	"github.com/minghua-center/minghua/internal/invitation/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"github.com/minghua-center/minghua/pkg/validate"
	"go.uber.org/zap"
)

type flowProvider struct {
	user          *identitydomain.Identity
	userErr       error
	updateErr     error
	updateCalls   int
	lastPassword  string
	secondGetUser *identitydomain.Identity
	getUserCalls  int
}

func (p *flowProvider) GetSession(ctx context.Context) (*identitydomain.Identity, error) {
	return p.user, nil
}

func (p *flowProvider) OnAuthStateChange(fn func(identitydomain.AuthEvent, *identitydomain.Identity)) func() {
	return func() {}
}

func (p *flowProvider) SignInWithPassword(ctx context.Context, email, password string) (*identitydomain.Identity, error) {
	return nil, identitydomain.ErrInvalidCredentials
}

func (p *flowProvider) SignOut(ctx context.Context) error { return nil }

func (p *flowProvider) UpdateUser(ctx context.Context, req identitydomain.UpdateUserRequest) error {
	p.updateCalls++
	p.lastPassword = req.Password
	return p.updateErr
}

func (p *flowProvider) GetUser(ctx context.Context) (*identitydomain.Identity, error) {
	p.getUserCalls++
	if p.userErr != nil {
		return nil, p.userErr
	}
	if p.getUserCalls > 1 && p.secondGetUser != nil {
		return p.secondGetUser, nil
	}
	return p.user, nil
}

type flowRepo struct {
	invitation *domain.Invitation
	findErr    error
	lastEmail  string
}

func (r *flowRepo) Create(ctx context.Context, invitation *domain.Invitation) error { return nil }

func (r *flowRepo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	return nil, domain.ErrNotFound
}

func (r *flowRepo) FindValidByEmail(ctx context.Context, email string, now time.Time) (*domain.Invitation, error) {
	r.lastEmail = email
	if r.findErr != nil {
		return nil, r.findErr
	}
	if r.invitation == nil {
		return nil, domain.ErrNoValidInvitation
	}
	return r.invitation, nil
}

func (r *flowRepo) ListPending(ctx context.Context, now time.Time) ([]domain.Invitation, error) {
	return nil, nil
}

func (r *flowRepo) MarkAccepted(ctx context.Context, id snowflake.ID, at time.Time) error {
	return nil
}

type recordingFinalizer struct {
	req    *FinalizeRequest
	err    error
	called int
}

func (f *recordingFinalizer) Finalize(ctx context.Context, req FinalizeRequest) error {
	f.called++
	f.req = &req
	return f.err
}

func confirmedIdentity() *identitydomain.Identity {
	confirmed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return &identitydomain.Identity{
		ID:               "3b9e6c1a-7d2f-4e8b-9c0a-1f2e3d4c5b6a",
		Email:            "invitee@example.com",
		EmailConfirmedAt: &confirmed,
	}
}

func openInvitation(role profiledomain.Role) *domain.Invitation {
	return &domain.Invitation{
		ID:        snowflake.ID(7123456789),
		Email:     "invitee@example.com",
		Role:      role,
		InvitedBy: "owner-1",
		ExpiresAt: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newTestFlow(provider *flowProvider, repo *flowRepo, finalizer *recordingFinalizer) *Flow {
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	return NewFlow(zap.NewNop(), provider, repo, finalizer, clk)
}

func validSubmit() SubmitRequest {
	return SubmitRequest{
		FullName:        "Zhang San",
		Password:        "Str0ng!pass",
		ConfirmPassword: "Str0ng!pass",
	}
}

func TestVerifyRequiresConfirmedSignIn(t *testing.T) {
	cases := []struct {
		name     string
		provider *flowProvider
	}{
		{"no user", &flowProvider{}},
		{"provider error", &flowProvider{userErr: errors.New("unavailable")}},
		{"unconfirmed email", &flowProvider{user: &identitydomain.Identity{ID: "u1", Email: "x@example.com"}}},
	}
	for _, tc := range cases {
		f := newTestFlow(tc.provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, &recordingFinalizer{})
		if err := f.Verify(context.Background()); !errors.Is(err, domain.ErrNotSignedIn) {
			t.Fatalf("%s: err = %v, want not signed in", tc.name, err)
		}
		if f.Status() != StatusInvalid {
			t.Fatalf("%s: status = %s, want invalid", tc.name, f.Status())
		}
	}
}

func TestVerifyWithoutInvitationIsInvalid(t *testing.T) {
	f := newTestFlow(&flowProvider{user: confirmedIdentity()}, &flowRepo{}, &recordingFinalizer{})
	if err := f.Verify(context.Background()); !errors.Is(err, domain.ErrNoValidInvitation) {
		t.Fatalf("err = %v, want no valid invitation", err)
	}
	if f.Status() != StatusInvalid {
		t.Fatalf("status = %s, want invalid", f.Status())
	}
}

func TestVerifyLookupFailureIsInvalid(t *testing.T) {
	lookupErr := errors.New("database unavailable")
	f := newTestFlow(&flowProvider{user: confirmedIdentity()}, &flowRepo{findErr: lookupErr}, &recordingFinalizer{})
	if err := f.Verify(context.Background()); !errors.Is(err, lookupErr) {
		t.Fatalf("err = %v, want lookup error", err)
	}
	if f.Status() != StatusInvalid {
		t.Fatalf("status = %s, want invalid", f.Status())
	}
}

func TestVerifyNormalizesLookupEmail(t *testing.T) {
	identity := confirmedIdentity()
	identity.Email = "Invitee@Example.COM"
	repo := &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}
	f := newTestFlow(&flowProvider{user: identity}, repo, &recordingFinalizer{})

	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if repo.lastEmail != "invitee@example.com" {
		t.Fatalf("lookup email = %q, want normalized", repo.lastEmail)
	}
	if f.Status() != StatusValid {
		t.Fatalf("status = %s, want valid", f.Status())
	}
}

func TestSubmitRequiresValidStatus(t *testing.T) {
	f := newTestFlow(&flowProvider{}, &flowRepo{}, &recordingFinalizer{})
	if _, err := f.Submit(context.Background(), validSubmit()); !errors.Is(err, domain.ErrNoValidInvitation) {
		t.Fatalf("err = %v, want no valid invitation", err)
	}
}

func TestSubmitValidationOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
		field  string
	}{
		{"short name", func(r *SubmitRequest) { r.FullName = "x" }, "full_name"},
		{"weak password", func(r *SubmitRequest) { r.Password = "short"; r.ConfirmPassword = "short" }, "password"},
		{"mismatched confirm", func(r *SubmitRequest) { r.ConfirmPassword = "Other1!pass" }, "confirm_password"},
	}
	for _, tc := range cases {
		provider := &flowProvider{user: confirmedIdentity()}
		finalizer := &recordingFinalizer{}
		f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, finalizer)
		if err := f.Verify(context.Background()); err != nil {
			t.Fatalf("%s: Verify: %v", tc.name, err)
		}

		req := validSubmit()
		tc.mutate(&req)
		_, err := f.Submit(context.Background(), req)
		var verr *validate.Error
		if !errors.As(err, &verr) {
			t.Fatalf("%s: err = %v, want a validation error", tc.name, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("%s: field = %q, want %q", tc.name, verr.Field, tc.field)
		}
		if f.Status() != StatusFailed {
			t.Fatalf("%s: status = %s, want failed", tc.name, f.Status())
		}
		if provider.updateCalls != 0 || finalizer.called != 0 {
			t.Fatalf("%s: invalid form must not touch the provider or finalizer", tc.name)
		}
	}
}

func TestSubmitSuccess(t *testing.T) {
	provider := &flowProvider{user: confirmedIdentity()}
	finalizer := &recordingFinalizer{}
	f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleAdmin)}, finalizer)
	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	result, err := f.Submit(context.Background(), validSubmit())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.PasswordSet || result.Warning != "" {
		t.Fatalf("result = %+v, want password set and no warning", result)
	}
	if f.Status() != StatusSuccess {
		t.Fatalf("status = %s, want success", f.Status())
	}
	if provider.lastPassword != "Str0ng!pass" {
		t.Fatalf("password sent to provider = %q", provider.lastPassword)
	}

	req := finalizer.req
	if req == nil {
		t.Fatal("finalizer not called")
	}
	if req.Role != profiledomain.RoleAdmin || req.FullName != "Zhang San" || !req.IsActive {
		t.Fatalf("finalize request = %+v", req)
	}
	if req.InvitationID != snowflake.ID(7123456789).String() {
		t.Fatalf("invitation id = %q", req.InvitationID)
	}
}

func TestSubmitSamePasswordContinuesWithWarning(t *testing.T) {
	provider := &flowProvider{user: confirmedIdentity(), updateErr: identitydomain.ErrSamePassword}
	finalizer := &recordingFinalizer{}
	f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, finalizer)
	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	result, err := f.Submit(context.Background(), validSubmit())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.PasswordSet {
		t.Fatal("password was not set and the result must say so")
	}
	if result.Warning == "" {
		t.Fatal("a kept password warrants a warning")
	}
	if finalizer.called != 1 {
		t.Fatal("finalization must still run")
	}
	if f.Status() != StatusSuccess {
		t.Fatalf("status = %s, want success", f.Status())
	}
}

func TestSubmitReauthenticationAborts(t *testing.T) {
	provider := &flowProvider{user: confirmedIdentity(), updateErr: identitydomain.ErrReauthenticationRequired}
	finalizer := &recordingFinalizer{}
	f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, finalizer)
	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	_, err := f.Submit(context.Background(), validSubmit())
	if !errors.Is(err, identitydomain.ErrReauthenticationRequired) {
		t.Fatalf("err = %v, want reauthentication required", err)
	}
	if finalizer.called != 0 {
		t.Fatal("finalization must not run after an abort")
	}
	if f.Status() != StatusFailed {
		t.Fatalf("status = %s, want failed", f.Status())
	}
}

func TestSubmitExpiredSessionAborts(t *testing.T) {
	provider := &flowProvider{user: confirmedIdentity(), updateErr: identitydomain.ErrSessionExpired}
	finalizer := &recordingFinalizer{}
	f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, finalizer)
	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	_, err := f.Submit(context.Background(), validSubmit())
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("err = %v, want session expired", err)
	}
	if finalizer.called != 0 {
		t.Fatal("finalization must not run after an abort")
	}
}

func TestSubmitUnknownPasswordErrorContinues(t *testing.T) {
	provider := &flowProvider{user: confirmedIdentity(), updateErr: errors.New("upstream hiccup")}
	finalizer := &recordingFinalizer{}
	f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, finalizer)
	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	result, err := f.Submit(context.Background(), validSubmit())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.PasswordSet {
		t.Fatal("password update failed, result must say so")
	}
	if finalizer.called != 1 {
		t.Fatal("finalization must still run")
	}
}

func TestSubmitFinalizationFailureFails(t *testing.T) {
	provider := &flowProvider{user: confirmedIdentity()}
	finalizer := &recordingFinalizer{err: errors.New("profile store down")}
	f := newTestFlow(provider, &flowRepo{invitation: openInvitation(profiledomain.RoleOfficer)}, finalizer)
	if err := f.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if _, err := f.Submit(context.Background(), validSubmit()); err == nil {
		t.Fatal("finalization failure must surface")
	}
	if f.Status() != StatusFailed {
		t.Fatalf("status = %s, want failed", f.Status())
	}
}
