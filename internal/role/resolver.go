// Package role derives capability flags from a session snapshot. Every flag
// here is advisory UX only: final authorization is enforced independently by
// the server layer regardless of what this package computes.
package role

import (
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	sessiondomain "github.com/minghua-center/minghua/internal/session/domain"
)

// Resolution is a pure derivation over one snapshot. It holds no state of
// its own; recompute it whenever the snapshot changes.
type Resolution struct {
	role       profiledomain.Role
	hasProfile bool
	active     bool
	loading    bool
}

// Resolve computes the resolution for a snapshot.
func Resolve(snap sessiondomain.Snapshot) Resolution {
	r := Resolution{loading: snap.Loading}
	if snap.Profile != nil {
		r.hasProfile = true
		r.role = snap.Profile.Role
		r.active = snap.Profile.IsActive
	}
	return r
}

// Role returns the profile role, empty when no profile is held.
func (r Resolution) Role() profiledomain.Role { return r.role }

// Loading reports whether a profile resolution is still outstanding.
func (r Resolution) Loading() bool { return r.loading }

// IsActive reports whether the profile is marked active.
func (r Resolution) IsActive() bool { return r.active }

// Loading gates the role flags: no capability is granted while a fetch is
// outstanding, even if a stale profile value happens to be present.
func (r Resolution) IsOwner() bool   { return r.is(profiledomain.RoleOwner) }
func (r Resolution) IsAdmin() bool   { return r.is(profiledomain.RoleAdmin) }
func (r Resolution) IsOfficer() bool { return r.is(profiledomain.RoleOfficer) }

func (r Resolution) IsAdminOrOwner() bool { return r.IsOwner() || r.IsAdmin() }

func (r Resolution) is(role profiledomain.Role) bool {
	return !r.loading && r.active && r.role == role
}

// HasPermission reports whether the held role meets the required one in the
// owner > admin > officer ordering.
func (r Resolution) HasPermission(required profiledomain.Role) bool {
	if !r.hasProfile {
		return false
	}
	return r.role.Level() >= required.Level()
}

// CanManageUsers is true for owner and admin.
func (r Resolution) CanManageUsers() bool {
	return r.role == profiledomain.RoleOwner || r.role == profiledomain.RoleAdmin
}

// CanInvite reports whether the held role may issue an invitation for the
// given role: owner may invite anyone, admin only officers, officer no one.
func (r Resolution) CanInvite(toInvite profiledomain.Role) bool {
	switch r.role {
	case profiledomain.RoleOwner:
		return toInvite.Valid()
	case profiledomain.RoleAdmin:
		return toInvite == profiledomain.RoleOfficer
	default:
		return false
	}
}

// CanEdit is true for any staff role. Authorization granularity beyond
// "any staff role" is enforced server-side.
func (r Resolution) CanEdit(resourceKind string) bool {
	_ = resourceKind
	return r.role.Valid()
}

// CanDelete is true for owner and admin.
func (r Resolution) CanDelete() bool {
	return r.role == profiledomain.RoleOwner || r.role == profiledomain.RoleAdmin
}

// CanViewAuditLogs is true for owner and admin.
func (r Resolution) CanViewAuditLogs() bool {
	return r.role == profiledomain.RoleOwner || r.role == profiledomain.RoleAdmin
}
