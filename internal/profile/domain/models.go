// Package domain contains the application-level profile record and its
// validation boundary. Rows coming back from the store pass through Parse
// before they are allowed anywhere near session state.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/minghua-center/minghua/pkg/validate"
)

// Role is the staff role hierarchy: owner > admin > officer.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleOfficer Role = "officer"
)

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleOfficer:
		return true
	default:
		return false
	}
}

// Level maps roles onto the strict permission ordering.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleOfficer:
		return 1
	default:
		return 0
	}
}

// Profile describes a staff member, keyed by identity id.
type Profile struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Email     string    `gorm:"type:text;not null;uniqueIndex" json:"email"`
	FullName  *string   `gorm:"column:full_name;type:text" json:"full_name,omitempty"`
	Role      Role      `gorm:"type:text;not null" json:"role"`
	IsActive  bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }

// FatalError marks a profile that failed integrity validation. The session
// core reacts to it by forcing a full sign-out.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("profile integrity: %s", e.Reason)
}

// Parse validates a fetched row against the id it was requested for and
// returns either a usable Profile or a FatalError. Anything else fetched from
// the store must never reach the session state machine.
func Parse(row *Profile, requestedID string) (*Profile, error) {
	if row == nil {
		return nil, &FatalError{Reason: "missing row"}
	}
	if row.ID == "" || row.Email == "" || row.Role == "" {
		return nil, &FatalError{Reason: "incomplete row"}
	}
	if row.ID != requestedID {
		return nil, &FatalError{Reason: "id mismatch"}
	}
	if !row.Role.Valid() {
		return nil, &FatalError{Reason: "unknown role"}
	}
	if err := validate.Email(row.Email); err != nil {
		return nil, &FatalError{Reason: "malformed email"}
	}
	if row.FullName != nil {
		if err := validate.FullName(strings.TrimSpace(*row.FullName)); err != nil {
			return nil, &FatalError{Reason: "malformed full name"}
		}
	}
	if !row.IsActive {
		return nil, &FatalError{Reason: "account inactive"}
	}
	return row, nil
}
