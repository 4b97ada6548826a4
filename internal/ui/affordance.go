// Package ui decides which in-screen controls are rendered for the
// current user. Every decision here is advisory; the API re-checks.
package ui

import "github.com/millerp/millerp/internal/rbac"

// MenuItem is one entry of a row actions menu.
type MenuItem struct {
	Action rbac.Action `json:"action"`
	Label  string      `json:"label"`
}

// ActionsMenu is the per-row menu. An empty menu is not rendered at all.
type ActionsMenu struct {
	Items []MenuItem `json:"items"`
}

// RowActions builds the row menu for module: Edit when edit is granted,
// Delete when delete is granted.
func RowActions(c *rbac.Checker, module string) ActionsMenu {
	var m ActionsMenu
	if c.Can(module, rbac.ActionEdit) {
		m.Items = append(m.Items, MenuItem{Action: rbac.ActionEdit, Label: "Edit"})
	}
	if c.Can(module, rbac.ActionDelete) {
		m.Items = append(m.Items, MenuItem{Action: rbac.ActionDelete, Label: "Delete"})
	}
	return m
}

// Visible reports whether the menu trigger should be rendered.
func (m ActionsMenu) Visible() bool {
	return len(m.Items) > 0
}

// Has reports whether the menu contains an item for action.
func (m ActionsMenu) Has(action rbac.Action) bool {
	for _, it := range m.Items {
		if it.Action == action {
			return true
		}
	}
	return false
}

// Toolbar holds the screen-level controls above a table.
type Toolbar struct {
	Create     bool `json:"create"`
	BulkDelete bool `json:"bulk_delete"`
}

// NewToolbar gates each toolbar control independently.
func NewToolbar(c *rbac.Checker, module string) Toolbar {
	return Toolbar{
		Create:     c.Can(module, rbac.ActionCreate),
		BulkDelete: c.Can(module, rbac.ActionDelete),
	}
}
