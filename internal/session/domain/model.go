// Package domain defines the externally visible session state and the
// session service contract.
package domain

import (
	identitydomain "github.com/minghua-center/minghua/internal/identity/domain"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
)

// Snapshot is the only state callers observe. Loading is true from startup
// until the first profile resolution completes; AuthLoading covers explicit
// sign-in calls.
type Snapshot struct {
	User        *identitydomain.Identity
	Profile     *profiledomain.Profile
	Loading     bool
	AuthLoading bool
}

// Authenticated reports whether an identity is held.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}
