package screens

import (
	"encoding/json"
	"net/http"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/guard"
	"github.com/millerp/millerp/internal/rbac"
	"github.com/millerp/millerp/internal/ui"
)

// RowRef identifies the record a dialog targets.
type RowRef struct {
	ID string `json:"id"`
}

// Descriptor is what the dashboard renders for an allowed screen.
type Descriptor struct {
	Path       string                  `json:"path"`
	Title      string                  `json:"title"`
	Group      string                  `json:"group,omitempty"`
	Module     string                  `json:"module,omitempty"`
	Toolbar    *ui.Toolbar             `json:"toolbar,omitempty"`
	RowActions *ui.ActionsMenu         `json:"row_actions,omitempty"`
	Dialog     *ui.DialogState[RowRef] `json:"dialog,omitempty"`
}

// NavItem is one sidebar entry.
type NavItem struct {
	Path   string `json:"path"`
	Title  string `json:"title"`
	Group  string `json:"group,omitempty"`
	Module string `json:"module,omitempty"`
}

// Handler serves screen descriptors behind the route guard.
type Handler struct {
	screens []Screen
	guard   *guard.Guard
}

func NewHandler(screens []Screen, g *guard.Guard) *Handler {
	return &Handler{screens: screens, guard: g}
}

// RegisterRoutes registers every screen, wrapped by the guard, plus the
// sign-in and forbidden destinations, which are never guarded.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	for _, s := range h.screens {
		mux.Handle("GET "+s.Path, h.guard.Wrap(s.Binding, h.serveScreen(s)))
	}
	mux.HandleFunc("GET "+h.guard.SignInPath(), h.HandleSignIn)
	mux.HandleFunc("GET "+h.guard.ForbiddenPath(), h.HandleForbidden)
}

// serveScreen renders the descriptor for s. Module screens carry the
// toolbar and row menu gated for the current user; a deep-linked dialog
// (?dialog=edit&row=<id>) is echoed back only when the user may open it.
func (h *Handler) serveScreen(s Screen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := Descriptor{Path: s.Path, Title: s.Title, Group: s.Group, Module: s.ModuleSlug}

		if s.ModuleSlug != "" {
			c := rbac.CheckerFromContext(r.Context())

			toolbar := ui.NewToolbar(c, s.ModuleSlug)
			d.Toolbar = &toolbar

			if menu := ui.RowActions(c, s.ModuleSlug); menu.Visible() {
				d.RowActions = &menu
			}

			if mode, ok := ui.ParseMode(r.URL.Query().Get("dialog")); ok {
				dialog := ui.NewDialogController[RowRef](c, s.ModuleSlug)
				var row *RowRef
				if id := r.URL.Query().Get("row"); id != "" {
					row = &RowRef{ID: id}
				}
				if dialog.OpenFor(mode, row) {
					state := dialog.State()
					d.Dialog = &state
				}
			}
		}

		writeJSON(w, http.StatusOK, d)
	})
}

// HandleSignIn describes the sign-in screen, carrying the sanitized
// return path for the login form.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"path":     h.guard.SignInPath(),
		"title":    "Sign in",
		"redirect": guard.SafeRedirect(r.URL.Query().Get("redirect"), ""),
	})
}

// HandleForbidden describes the 403 screen with a way back home.
func (h *Handler) HandleForbidden(w http.ResponseWriter, r *http.Request) {
	home := h.guard.SignInPath()
	if identity := auth.GetIdentity(r.Context()); identity != nil {
		role, _ := rbac.ParseRole(identity.Role)
		home = Home(role)
	}
	writeJSON(w, http.StatusForbidden, map[string]string{
		"path":  h.guard.ForbiddenPath(),
		"title": "Forbidden",
		"home":  home,
	})
}

// HandleNavigation lists the screens the current user would be allowed to
// open, using the same rules as the guard.
// GET /api/v1/navigation
func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	items := []NavItem{}
	for _, s := range h.screens {
		if guard.Evaluate(identity, s.Binding) != guard.Allowed {
			continue
		}
		items = append(items, NavItem{Path: s.Path, Title: s.Title, Group: s.Group, Module: s.ModuleSlug})
	}

	home := h.guard.SignInPath()
	if identity != nil {
		role, _ := rbac.ParseRole(identity.Role)
		home = Home(role)
	}
	writeJSON(w, http.StatusOK, map[string]any{"home": home, "items": items, "count": len(items)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
