package rbac

import (
	"net/http"
)

// HandleCan answers a single can(module, action) query for the caller.
// GET /api/v1/access/can?module=rice-sales-report&action=edit
//
// Clients use it to gate UI they render on their own; the API routes
// still enforce the same check server-side.
func HandleCan(w http.ResponseWriter, r *http.Request) {
	module := r.URL.Query().Get("module")
	if module == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "module is required"})
		return
	}
	action, ok := ParseAction(r.URL.Query().Get("action"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action must be one of view, create, edit, delete"})
		return
	}

	c := CheckerFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"module":  module,
		"action":  action,
		"allowed": c.Can(module, action),
	})
}
