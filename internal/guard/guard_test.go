package guard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/guard"
	"github.com/millerp/millerp/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	millRoles = []rbac.Role{rbac.RoleMillAdmin, rbac.RoleMillStaff}

	staffDirectory = guard.Binding{Path: "/mill/staff-directory", RequiredRoles: millRoles, ModuleSlug: "staff-directory"}
	payments       = guard.Binding{Path: "/mill/financial-payment-report", RequiredRoles: millRoles, ModuleSlug: "financial-payment-report"}
	millsScreen    = guard.Binding{Path: "/super-admin/mills", RequiredRoles: []rbac.Role{rbac.RoleSuperAdmin}}
	openScreen     = guard.Binding{Path: "/profile"}
)

type captureLogger struct {
	mu     sync.Mutex
	events []rbac.AuditEvent
}

func (c *captureLogger) Log(_ context.Context, e rbac.AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func directoryViewer() *auth.Identity {
	return &auth.Identity{
		UserID:      "u-1",
		MillID:      "m-1",
		Role:        "mill-staff",
		Permissions: []auth.Grant{{ModuleSlug: "staff-directory", Actions: []string{"view"}}},
	}
}

func TestEvaluate(t *testing.T) {
	admin := &auth.Identity{UserID: "u-2", MillID: "m-1", Role: "mill-admin"}
	root := &auth.Identity{UserID: "u-3", Role: "super-admin"}

	cases := []struct {
		name     string
		identity *auth.Identity
		binding  guard.Binding
		want     guard.Outcome
	}{
		{"no session", nil, staffDirectory, guard.Unauthenticated},
		{"no session on open route", nil, openScreen, guard.Unauthenticated},
		{"staff granted module", directoryViewer(), staffDirectory, guard.Allowed},
		{"staff missing module", directoryViewer(), payments, guard.ModuleDenied},
		{"staff on super-admin subtree", directoryViewer(), millsScreen, guard.RoleDenied},
		{"admin bypasses module", admin, payments, guard.Allowed},
		{"super-admin outside mill subtree", root, payments, guard.RoleDenied},
		{"super-admin own subtree", root, millsScreen, guard.Allowed},
		{"roles only, no module", directoryViewer(), openScreen, guard.Allowed},
		{"unknown role", &auth.Identity{UserID: "u-4", Role: "owner"}, staffDirectory, guard.RoleDenied},
		{"module without role gate", directoryViewer(), guard.Binding{Path: "/x", ModuleSlug: "rice-sales-report"}, guard.ModuleDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, guard.Evaluate(tc.identity, tc.binding))
		})
	}
}

func TestEvaluate_RoleCheckedBeforeModule(t *testing.T) {
	// Staff without the grant on an admin-only screen is a role denial.
	b := guard.Binding{Path: "/mill-admin/staff", RequiredRoles: []rbac.Role{rbac.RoleMillAdmin}, ModuleSlug: "staff-directory"}
	assert.Equal(t, guard.RoleDenied, guard.Evaluate(&auth.Identity{Role: "mill-staff"}, b))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", guard.Unauthenticated.String())
	assert.Equal(t, "role_denied", guard.RoleDenied.String())
	assert.Equal(t, "module_denied", guard.ModuleDenied.String())
	assert.Equal(t, "allowed", guard.Allowed.String())
	assert.Equal(t, "unknown", guard.Outcome(42).String())
}

func screen() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("screen"))
	})
}

func navigate(h http.Handler, target string, identity *auth.Identity, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGuard_StaffScenario(t *testing.T) {
	g := guard.New(guard.Config{})

	w := navigate(g.Wrap(staffDirectory, screen()), "/mill/staff-directory", directoryViewer())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "screen", w.Body.String())

	w = navigate(g.Wrap(payments, screen()), "/mill/financial-payment-report", directoryViewer())
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/403", w.Header().Get("Location"))
}

func TestGuard_NoSessionRedirectsToSignIn(t *testing.T) {
	g := guard.New(guard.Config{SignInPath: "/sign-in"})

	w := navigate(g.Wrap(staffDirectory, screen()), "/mill/staff-directory?page=2&q=ravi", nil)

	require.Equal(t, http.StatusSeeOther, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/sign-in", loc.Path)
	assert.Equal(t, "/mill/staff-directory?page=2&q=ravi", loc.Query().Get("redirect"))
}

func TestGuard_RoleDeniedRedirectsToForbidden(t *testing.T) {
	g := guard.New(guard.Config{ForbiddenPath: "/forbidden"})

	w := navigate(g.Wrap(millsScreen, screen()), "/super-admin/mills", directoryViewer())

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/forbidden", w.Header().Get("Location"))
}

func TestGuard_JSONClients(t *testing.T) {
	g := guard.New(guard.Config{})

	w := navigate(g.Wrap(payments, screen()), "/mill/financial-payment-report", directoryViewer(), "Accept", "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "module_denied", body["outcome"])
	assert.Equal(t, "/403", body["location"])

	w = navigate(g.Wrap(payments, screen()), "/mill/financial-payment-report", nil, "Accept", "application/json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unauthenticated", body["outcome"])
	assert.Contains(t, body["location"], "/sign-in?redirect=")
}

func TestGuard_ReevaluatesEveryNavigation(t *testing.T) {
	g := guard.New(guard.Config{})
	h := g.Wrap(payments, screen())

	identity := directoryViewer()
	assert.Equal(t, http.StatusSeeOther, navigate(h, "/mill/financial-payment-report", identity).Code)

	// A refreshed session replaces the snapshot with a wider grant.
	refreshed := directoryViewer()
	refreshed.Permissions = append(refreshed.Permissions, auth.Grant{ModuleSlug: "financial-payment-report", Actions: []string{"view"}})
	assert.Equal(t, http.StatusOK, navigate(h, "/mill/financial-payment-report", refreshed).Code)

	// And narrowing it takes effect on the very next request.
	assert.Equal(t, http.StatusSeeOther, navigate(h, "/mill/financial-payment-report", identity).Code)
}

func TestGuard_AuditsDenials(t *testing.T) {
	logger := &captureLogger{}
	g := guard.New(guard.Config{Audit: logger})

	navigate(g.Wrap(payments, screen()), "/mill/financial-payment-report", directoryViewer())
	navigate(g.Wrap(payments, screen()), "/mill/financial-payment-report", nil)
	navigate(g.Wrap(staffDirectory, screen()), "/mill/staff-directory", directoryViewer())

	require.Len(t, logger.events, 1)
	evt := logger.events[0]
	assert.Equal(t, rbac.ActionAccessDenied, evt.Action)
	assert.Equal(t, "navigation", evt.Source)
	assert.Equal(t, "module_denied", evt.Metadata["outcome"])
	assert.Equal(t, "financial-payment-report", evt.Metadata["module"])
}

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"/mill/staff-directory":        "/mill/staff-directory",
		"/mill/staff-directory?page=2": "/mill/staff-directory?page=2",
		"":                             "/home",
		"https://evil.example/phish":   "/home",
		"//evil.example/phish":         "/home",
		"/\\evil.example":              "/home",
		"mill/staff-directory":         "/home",
		"javascript:alert(1)":          "/home",
		"/mill/x\r\nSet-Cookie: a=b":   "/home",
	}
	for target, want := range cases {
		assert.Equal(t, want, guard.SafeRedirect(target, "/home"), target)
	}
}

func TestTable_Validate(t *testing.T) {
	require.NoError(t, guard.Table{staffDirectory, payments, millsScreen, openScreen}.Validate(nil))

	catalog := func(slug string) bool {
		return slug == "staff-directory" || slug == "financial-payment-report"
	}
	require.NoError(t, guard.Table{staffDirectory, payments, millsScreen, openScreen}.Validate(catalog))
	assert.ErrorIs(t,
		guard.Table{staffDirectory, {Path: "/mill/casino", ModuleSlug: "casino"}}.Validate(catalog),
		guard.ErrInvalidTable)

	bad := map[string]guard.Table{
		"duplicate path":  {staffDirectory, staffDirectory},
		"relative path":   {{Path: "mill/x"}},
		"scheme-relative": {{Path: "//x"}},
		"unknown role":    {{Path: "/x", RequiredRoles: []rbac.Role{"owner"}}},
		"bad slug":        {{Path: "/x", ModuleSlug: "staff directory"}},
	}
	for name, table := range bad {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, table.Validate(nil), guard.ErrInvalidTable)
		})
	}
}

func TestTable_Lookup(t *testing.T) {
	table := guard.Table{staffDirectory, payments}

	b, ok := table.Lookup("/mill/financial-payment-report")
	assert.True(t, ok)
	assert.Equal(t, "financial-payment-report", b.ModuleSlug)

	_, ok = table.Lookup("/nope")
	assert.False(t, ok)
}
