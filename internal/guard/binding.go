// Package guard gates navigation to screens by role and module view
// permission, re-evaluating on every request.
package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/millerp/millerp/internal/rbac"
)

// Binding ties a screen path to the roles allowed in and, optionally, the
// module whose view permission is required.
type Binding struct {
	Path          string
	RequiredRoles []rbac.Role
	ModuleSlug    string
}

// Table is the static route table.
type Table []Binding

var ErrInvalidTable = errors.New("invalid route table")

// Validate checks the table once at startup: paths are absolute and
// unique, roles are known and every module slug is one knownModule accepts.
// A nil knownModule only checks that slugs are well formed.
func (t Table) Validate(knownModule func(slug string) bool) error {
	seen := make(map[string]bool, len(t))
	for _, b := range t {
		if !strings.HasPrefix(b.Path, "/") || strings.HasPrefix(b.Path, "//") {
			return fmt.Errorf("%w: path %q must be a local absolute path", ErrInvalidTable, b.Path)
		}
		if seen[b.Path] {
			return fmt.Errorf("%w: duplicate path %q", ErrInvalidTable, b.Path)
		}
		seen[b.Path] = true

		for _, r := range b.RequiredRoles {
			if _, ok := rbac.ParseRole(string(r)); !ok {
				return fmt.Errorf("%w: path %q requires unknown role %q", ErrInvalidTable, b.Path, r)
			}
		}
		if b.ModuleSlug != strings.TrimSpace(b.ModuleSlug) || strings.ContainsAny(b.ModuleSlug, " \t/") {
			return fmt.Errorf("%w: path %q has malformed module slug %q", ErrInvalidTable, b.Path, b.ModuleSlug)
		}
		if b.ModuleSlug != "" && knownModule != nil && !knownModule(b.ModuleSlug) {
			return fmt.Errorf("%w: path %q names unknown module %q", ErrInvalidTable, b.Path, b.ModuleSlug)
		}
	}
	return nil
}

// Lookup returns the binding registered for path.
func (t Table) Lookup(path string) (Binding, bool) {
	for _, b := range t {
		if b.Path == path {
			return b, true
		}
	}
	return Binding{}, false
}
