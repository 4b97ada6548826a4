package rbac

import (
	"slices"
	"strings"

	"github.com/millerp/millerp/internal/auth"
)

// ActionSet is a set of actions. The zero value is empty.
type ActionSet uint8

// NewActionSet builds a set from already-parsed actions.
func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s |= a.bit()
	}
	return s
}

func (s ActionSet) Has(a Action) bool {
	b := a.bit()
	return b != 0 && s&b == b
}

func (s ActionSet) Len() int {
	n := 0
	for _, a := range Actions {
		if s.Has(a) {
			n++
		}
	}
	return n
}

// Slice returns the actions in canonical order.
func (s ActionSet) Slice() []Action {
	out := make([]Action, 0, len(Actions))
	for _, a := range Actions {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// Strings returns the actions in canonical order as raw strings.
func (s ActionSet) Strings() []string {
	out := make([]string, 0, len(Actions))
	for _, a := range s.Slice() {
		out = append(out, string(a))
	}
	return out
}

// PermissionSet maps module slugs to granted actions. It is built once
// from session data and never modified, so concurrent reads are safe.
type PermissionSet struct {
	modules map[string]ActionSet
}

// NewPermissionSet normalizes raw session grants. Unknown action strings
// are dropped, repeated actions collapse, an empty slug is ignored and a
// slug listed twice keeps only its last entry.
func NewPermissionSet(grants []auth.Grant) PermissionSet {
	modules := make(map[string]ActionSet, len(grants))
	for _, g := range grants {
		slug := strings.TrimSpace(g.ModuleSlug)
		if slug == "" {
			continue
		}
		var set ActionSet
		for _, raw := range g.Actions {
			if a, ok := ParseAction(raw); ok {
				set |= a.bit()
			}
		}
		modules[slug] = set
	}
	return PermissionSet{modules: modules}
}

// Granted returns the actions granted on module, or the empty set.
func (p PermissionSet) Granted(module string) ActionSet {
	return p.modules[module]
}

// Grants returns the normalized grants sorted by slug. Modules whose
// action set ended up empty are left out.
func (p PermissionSet) Grants() []auth.Grant {
	slugs := make([]string, 0, len(p.modules))
	for slug, set := range p.modules {
		if set != 0 {
			slugs = append(slugs, slug)
		}
	}
	slices.Sort(slugs)

	out := make([]auth.Grant, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, auth.Grant{ModuleSlug: slug, Actions: p.modules[slug].Strings()})
	}
	return out
}
