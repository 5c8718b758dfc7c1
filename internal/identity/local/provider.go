// Package local implements the identity provider contract on top of the
// application database: argon2id password hashes, sha256-hashed opaque
// session tokens, and auth-state change fan-out to subscribers.
package local

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/identity/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour

	minPasswordLength = 8
)

// Provider is the gorm-backed identity provider. It also keeps a "current
// session" token so it can serve the single-client Provider contract; the
// token-scoped methods are used by the HTTP layer where many sessions are
// live at once.
type Provider struct {
	log   *zap.Logger
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock

	mu           sync.Mutex
	currentToken string
	subs         map[int]func(domain.AuthEvent, *domain.Identity)
	nextSub      int
}

func NewProvider(log *zap.Logger, db *gorm.DB, genID *snowflake.Node, clk clock.Clock) *Provider {
	return &Provider{
		log:   log.Named("identity.local"),
		db:    db,
		genID: genID,
		clock: clk,
		subs:  make(map[int]func(domain.AuthEvent, *domain.Identity)),
	}
}

// CreateAccountRequest describes a new local account.
type CreateAccountRequest struct {
	Email          string
	Password       string
	EmailConfirmed bool
}

// CreateAccount registers a local account. Invited users get a pre-assigned
// password here and replace it during invitation acceptance.
func (p *Provider) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Identity, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	var existing Account
	err = p.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, domain.ErrAccountExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	account := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.EmailConfirmed {
		account.EmailConfirmedAt = &now
	}
	if err := p.db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return identityOf(&account), nil
}

// SignInToken verifies credentials and mints a new session token.
func (p *Provider) SignInToken(ctx context.Context, email, password string) (*domain.Identity, string, time.Time, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, "", time.Time{}, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(password) == "" {
		return nil, "", time.Time{}, domain.ErrInvalidCredentials
	}

	var account Account
	if err := p.db.WithContext(ctx).Where("email = ?", normalized).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", time.Time{}, domain.ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if account.PasswordHash == nil || !verifyPassword(password, *account.PasswordHash) {
		return nil, "", time.Time{}, domain.ErrInvalidCredentials
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := p.clock.Now()
	session := Session{
		ID:        p.genID.Generate(),
		AccountID: account.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: now.Add(sessionTTL),
		CreatedAt: now,
	}
	if err := p.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, "", time.Time{}, err
	}

	updates := map[string]any{"last_sign_in_at": now, "updated_at": now}
	if err := p.db.WithContext(ctx).Model(&Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		return nil, "", time.Time{}, err
	}
	account.LastSignInAt = &now

	return identityOf(&account), rawToken, session.ExpiresAt, nil
}

// AuthenticateToken resolves a raw session token to its identity.
func (p *Provider) AuthenticateToken(ctx context.Context, rawToken string) (*domain.Identity, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrNoSession
	}

	var session Session
	if err := p.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoSession
		}
		return nil, err
	}
	if session.RevokedAt != nil || p.clock.Now().After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	var account Account
	if err := p.db.WithContext(ctx).Where("id = ?", session.AccountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return identityOf(&account), nil
}

// RevokeToken invalidates a session token.
func (p *Provider) RevokeToken(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrNoSession
	}
	now := p.clock.Now()
	tx := p.db.WithContext(ctx).Model(&Session{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(token)).
		Update("revoked_at", now)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNoSession
	}
	return nil
}

// UpdatePasswordByToken sets a new password for the token's account.
func (p *Provider) UpdatePasswordByToken(ctx context.Context, rawToken, newPassword string) error {
	identity, err := p.AuthenticateToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return domain.ErrWeakPassword
	}

	var account Account
	if err := p.db.WithContext(ctx).Where("id = ?", identity.ID).First(&account).Error; err != nil {
		return err
	}
	if account.EmailConfirmedAt == nil {
		return domain.ErrReauthenticationRequired
	}
	if account.PasswordHash != nil && verifyPassword(newPassword, *account.PasswordHash) {
		return domain.ErrSamePassword
	}

	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	now := p.clock.Now()
	return p.db.WithContext(ctx).Model(&Account{}).Where("id = ?", account.ID).
		Updates(map[string]any{"password_hash": hashed, "updated_at": now}).Error
}

// WithToken returns a Provider view bound to one session token, for callers
// that juggle many concurrent sessions.
func (p *Provider) WithToken(rawToken string) domain.Provider {
	return &boundProvider{parent: p, token: rawToken}
}

// --- single-client Provider contract ---

func (p *Provider) GetSession(ctx context.Context) (*domain.Identity, error) {
	p.mu.Lock()
	token := p.currentToken
	p.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	identity, err := p.AuthenticateToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) || errors.Is(err, domain.ErrSessionExpired) {
			p.mu.Lock()
			if p.currentToken == token {
				p.currentToken = ""
			}
			p.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	identity, rawToken, _, err := p.SignInToken(ctx, email, password)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.currentToken = rawToken
	p.mu.Unlock()
	p.emit(domain.EventSignedIn, identity)
	return identity, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.currentToken
	p.currentToken = ""
	p.mu.Unlock()

	var err error
	if token != "" {
		if err = p.RevokeToken(ctx, token); errors.Is(err, domain.ErrNoSession) {
			err = nil
		}
	}
	p.emit(domain.EventSignedOut, nil)
	return err
}

func (p *Provider) UpdateUser(ctx context.Context, req domain.UpdateUserRequest) error {
	p.mu.Lock()
	token := p.currentToken
	p.mu.Unlock()
	if token == "" {
		return domain.ErrNoSession
	}
	if req.Password == "" {
		return nil
	}
	return p.UpdatePasswordByToken(ctx, token, req.Password)
}

func (p *Provider) GetUser(ctx context.Context) (*domain.Identity, error) {
	p.mu.Lock()
	token := p.currentToken
	p.mu.Unlock()
	if token == "" {
		return nil, domain.ErrNoSession
	}
	return p.AuthenticateToken(ctx, token)
}

func (p *Provider) OnAuthStateChange(fn func(domain.AuthEvent, *domain.Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// emit dispatches asynchronously so subscriber callbacks can call back into
// the provider without deadlocking.
func (p *Provider) emit(event domain.AuthEvent, identity *domain.Identity) {
	p.mu.Lock()
	fns := make([]func(domain.AuthEvent, *domain.Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		go fn(event, identity)
	}
}

type boundProvider struct {
	parent *Provider
	token  string
}

func (b *boundProvider) GetSession(ctx context.Context) (*domain.Identity, error) {
	identity, err := b.parent.AuthenticateToken(ctx, b.token)
	if errors.Is(err, domain.ErrNoSession) || errors.Is(err, domain.ErrSessionExpired) {
		return nil, nil
	}
	return identity, err
}

func (b *boundProvider) GetUser(ctx context.Context) (*domain.Identity, error) {
	return b.parent.AuthenticateToken(ctx, b.token)
}

func (b *boundProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	return b.parent.SignInWithPassword(ctx, email, password)
}

func (b *boundProvider) SignOut(ctx context.Context) error {
	err := b.parent.RevokeToken(ctx, b.token)
	if errors.Is(err, domain.ErrNoSession) {
		return nil
	}
	return err
}

func (b *boundProvider) UpdateUser(ctx context.Context, req domain.UpdateUserRequest) error {
	if req.Password == "" {
		return nil
	}
	return b.parent.UpdatePasswordByToken(ctx, b.token, req.Password)
}

func (b *boundProvider) OnAuthStateChange(fn func(domain.AuthEvent, *domain.Identity)) func() {
	return b.parent.OnAuthStateChange(fn)
}

func identityOf(account *Account) *domain.Identity {
	return &domain.Identity{
		ID:               account.ID,
		Email:            account.Email,
		EmailConfirmedAt: account.EmailConfirmedAt,
		LastSignInAt:     account.LastSignInAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
