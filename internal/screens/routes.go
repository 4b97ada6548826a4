package screens

import (
	"strings"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/guard"
	"github.com/millerp/millerp/internal/rbac"
)

// Screen is a route binding plus what the dashboard shows for it.
type Screen struct {
	guard.Binding
	Title string
	Group string
}

var (
	superAdminOnly = []rbac.Role{rbac.RoleSuperAdmin}
	millAdminOnly  = []rbac.Role{rbac.RoleMillAdmin}
	millStaffOnly  = []rbac.Role{rbac.RoleMillStaff}
	millRoles      = []rbac.Role{rbac.RoleMillAdmin, rbac.RoleMillStaff}
)

// Routes builds the route table: one dashboard per role, the admin
// management screens and a /mill/<slug> screen per catalog module.
func Routes() []Screen {
	screens := []Screen{
		{Binding: guard.Binding{Path: "/super-admin/dashboard", RequiredRoles: superAdminOnly}, Title: "Platform Dashboard"},
		{Binding: guard.Binding{Path: "/super-admin/mills", RequiredRoles: superAdminOnly}, Title: "Mills"},
		{Binding: guard.Binding{Path: "/mill-admin/dashboard", RequiredRoles: millAdminOnly}, Title: "Mill Dashboard"},
		{Binding: guard.Binding{Path: "/mill-admin/staff", RequiredRoles: millAdminOnly}, Title: "Manage Staff", Group: GroupStaff},
		{Binding: guard.Binding{Path: "/mill-staff/dashboard", RequiredRoles: millStaffOnly}, Title: "My Dashboard"},
	}
	for _, m := range Modules {
		screens = append(screens, Screen{
			Binding: guard.Binding{Path: "/mill/" + m.Slug, RequiredRoles: millRoles, ModuleSlug: m.Slug},
			Title:   m.Title,
			Group:   m.Group,
		})
	}
	return screens
}

// Table returns the bindings of screens for the guard.
func Table(screens []Screen) guard.Table {
	t := make(guard.Table, len(screens))
	for i, s := range screens {
		t[i] = s.Binding
	}
	return t
}

// ValidateRoutes checks the screens' route table against the module catalog.
func ValidateRoutes(screens []Screen) error {
	return Table(screens).Validate(KnownModule)
}

// Home is the landing path for role.
func Home(role rbac.Role) string {
	switch role {
	case rbac.RoleSuperAdmin:
		return "/super-admin/dashboard"
	case rbac.RoleMillAdmin:
		return "/mill-admin/dashboard"
	case rbac.RoleMillStaff:
		return "/mill-staff/dashboard"
	}
	return "/sign-in"
}

// PostLoginRedirect returns where to send identity after sign-in. The
// requested path is honored when it is local and the user may open it;
// otherwise the role's home is used.
func PostLoginRedirect(table guard.Table) func(identity *auth.Identity, requested string) string {
	return func(identity *auth.Identity, requested string) string {
		role, _ := rbac.ParseRole(identity.Role)
		home := Home(role)
		target := guard.SafeRedirect(requested, home)
		if target == home {
			return home
		}
		path := target
		if i := strings.IndexAny(target, "?#"); i >= 0 {
			path = target[:i]
		}
		if b, ok := table.Lookup(path); ok && guard.Evaluate(identity, b) != guard.Allowed {
			return home
		}
		return target
	}
}
