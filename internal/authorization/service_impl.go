// Package authorization enforces the staff role hierarchy server-side.
// The client-side capability flags are advisory UX only; this layer is the
// one that actually says no.
package authorization

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	profiledomain "github.com/minghua-center/minghua/internal/profile/domain"
	"gorm.io/gorm"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Resources and actions checked at the HTTP layer.
const (
	ResourceUsers       = "users"
	ResourceInvitations = "invitations"
	ResourceAuditLogs   = "audit_logs"
	ResourceContent     = "content"

	ActionManage = "manage"
	ActionCreate = "create"
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

type Service struct {
	enforcer *casbin.Enforcer
}

func New(db *gorm.DB) (*Service, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}

	svc := &Service{enforcer: enforcer}
	if err := svc.seed(); err != nil {
		return nil, err
	}
	return svc, nil
}

// seed installs the role hierarchy and the baseline policy. AddPolicy is a
// no-op for rules that already exist.
func (s *Service) seed() error {
	groupings := [][]string{
		{string(profiledomain.RoleOwner), string(profiledomain.RoleAdmin)},
		{string(profiledomain.RoleAdmin), string(profiledomain.RoleOfficer)},
	}
	for _, g := range groupings {
		if _, err := s.enforcer.AddGroupingPolicy(g[0], g[1]); err != nil {
			return err
		}
	}

	policies := [][]string{
		{string(profiledomain.RoleOfficer), ResourceContent, ActionEdit},
		{string(profiledomain.RoleAdmin), ResourceContent, ActionDelete},
		{string(profiledomain.RoleAdmin), ResourceUsers, ActionManage},
		{string(profiledomain.RoleAdmin), ResourceInvitations, ActionCreate},
		{string(profiledomain.RoleAdmin), ResourceInvitations, ActionView},
		{string(profiledomain.RoleAdmin), ResourceAuditLogs, ActionView},
	}
	for _, p := range policies {
		if _, err := s.enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return s.enforcer.SavePolicy()
}

// Can reports whether the role may perform the action on the resource.
func (s *Service) Can(role profiledomain.Role, resource, action string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	return s.enforcer.Enforce(string(role), resource, action)
}
