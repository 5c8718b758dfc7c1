// Package domain contains invitation records and their store contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
)

// Invitation is a pending offer to join the staff with a given role. It is
// valid while accepted_at is unset and expires_at lies in the future; when
// several valid invitations exist for one email, the newest one wins.
type Invitation struct {
	ID         snowflake.ID       `gorm:"primaryKey" json:"id"`
	Email      string             `gorm:"type:text;not null;index" json:"email"`
	Role       profiledomain.Role `gorm:"type:text;not null" json:"role"`
	InvitedBy  string             `gorm:"column:invited_by;type:text" json:"invited_by"`
	ExpiresAt  time.Time          `gorm:"column:expires_at;not null;index" json:"expires_at"`
	AcceptedAt *time.Time         `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }

// Valid reports whether the invitation is still open at the given time.
func (i Invitation) Valid(now time.Time) bool {
	return i.AcceptedAt == nil && i.ExpiresAt.After(now)
}
