// Package rbac holds the permission model and the access checker that
// answers whether the current user may perform an action on a module.
package rbac

// Action is one of the four operations a module permission can grant.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Actions lists every action in canonical order.
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

// ParseAction maps a raw string onto the closed action set. Matching is
// exact; anything else is reported as unknown.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete:
		return a, true
	}
	return "", false
}

func (a Action) bit() ActionSet {
	switch a {
	case ActionView:
		return 1 << 0
	case ActionCreate:
		return 1 << 1
	case ActionEdit:
		return 1 << 2
	case ActionDelete:
		return 1 << 3
	}
	return 0
}

// Role is the account tier of a user.
type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleMillAdmin  Role = "mill-admin"
	RoleMillStaff  Role = "mill-staff"
)

// ParseRole maps a raw session role onto the known roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleSuperAdmin, RoleMillAdmin, RoleMillStaff:
		return r, true
	}
	return "", false
}

// FullAccess reports whether the role bypasses the per-module permission list.
func (r Role) FullAccess() bool {
	return r == RoleSuperAdmin || r == RoleMillAdmin
}

// Decision is the outcome of an API permission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
