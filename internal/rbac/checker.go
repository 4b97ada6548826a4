package rbac

import (
	"context"

	"github.com/millerp/millerp/internal/auth"
)

// Checker answers can(module, action) for one session snapshot. It does
// no I/O and holds no mutable state.
type Checker struct {
	role  Role
	perms PermissionSet
}

// NewChecker captures the role and grants of identity. A nil identity or
// an unrecognized role produces a checker that denies everything.
func NewChecker(identity *auth.Identity) *Checker {
	if identity == nil {
		return &Checker{}
	}
	role, ok := ParseRole(identity.Role)
	if !ok {
		return &Checker{}
	}
	c := &Checker{role: role}
	if role == RoleMillStaff {
		c.perms = NewPermissionSet(identity.Permissions)
	}
	return c
}

// CheckerFromContext builds a checker for the request identity.
func CheckerFromContext(ctx context.Context) *Checker {
	return NewChecker(auth.GetIdentity(ctx))
}

// Can reports whether the user may perform action on module. Admin roles
// are not subject to the permission list; mill-staff need an explicit grant.
func (c *Checker) Can(module string, action Action) bool {
	if c == nil {
		return false
	}
	switch {
	case c.role.FullAccess():
		return true
	case c.role == RoleMillStaff:
		return c.perms.Granted(module).Has(action)
	}
	return false
}

// Role returns the parsed role, or "" when unauthenticated or unknown.
func (c *Checker) Role() Role {
	if c == nil {
		return ""
	}
	return c.role
}

// HasRole reports whether the checker's role is one of roles.
func (c *Checker) HasRole(roles ...Role) bool {
	if c == nil || c.role == "" {
		return false
	}
	for _, r := range roles {
		if r == c.role {
			return true
		}
	}
	return false
}
