package local

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is a locally stored identity.
type Account struct {
	ID               string     `gorm:"primaryKey;type:text"`
	Email            string     `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash     *string    `gorm:"type:text"`
	EmailConfirmedAt *time.Time `gorm:"column:email_confirmed_at"`
	LastSignInAt     *time.Time `gorm:"column:last_sign_in_at"`
	CreatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Session is a persisted login session.
type Session struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AccountID string       `gorm:"column:account_id;type:text;not null;index"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt *time.Time   `gorm:"column:revoked_at"`
	CreatedAt time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "identity_sessions" }
