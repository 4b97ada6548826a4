package guard

import (
	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/rbac"
)

// Outcome is the result of one navigation attempt.
type Outcome int

const (
	Unauthenticated Outcome = iota
	RoleDenied
	ModuleDenied
	Allowed
)

func (o Outcome) String() string {
	switch o {
	case Unauthenticated:
		return "unauthenticated"
	case RoleDenied:
		return "role_denied"
	case ModuleDenied:
		return "module_denied"
	case Allowed:
		return "allowed"
	}
	return "unknown"
}

// Evaluate applies the navigation rules in order: session present, role
// in the required set, then view permission on the bound module.
func Evaluate(identity *auth.Identity, b Binding) Outcome {
	if identity == nil {
		return Unauthenticated
	}
	c := rbac.NewChecker(identity)
	if len(b.RequiredRoles) > 0 && !c.HasRole(b.RequiredRoles...) {
		return RoleDenied
	}
	if b.ModuleSlug != "" && !c.Can(b.ModuleSlug, rbac.ActionView) {
		return ModuleDenied
	}
	return Allowed
}
