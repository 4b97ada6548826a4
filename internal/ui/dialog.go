package ui

import "github.com/millerp/millerp/internal/rbac"

// Mode is the kind of dialog a screen can open.
type Mode string

const (
	ModeAdd    Mode = "add"
	ModeEdit   Mode = "edit"
	ModeDelete Mode = "delete"
	ModeView   Mode = "view"
)

// ParseMode maps a raw string onto a dialog mode.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(s); m {
	case ModeAdd, ModeEdit, ModeDelete, ModeView:
		return m, true
	}
	return "", false
}

// Action is the permission a mode needs.
func (m Mode) Action() rbac.Action {
	switch m {
	case ModeAdd:
		return rbac.ActionCreate
	case ModeEdit:
		return rbac.ActionEdit
	case ModeDelete:
		return rbac.ActionDelete
	case ModeView:
		return rbac.ActionView
	}
	return ""
}

// DialogState is the serializable state of a screen's dialog.
type DialogState[T any] struct {
	Open       *Mode `json:"open"`
	CurrentRow *T    `json:"current_row"`
}

// DialogController owns the open dialog and the row it targets for one
// screen. It is not safe for concurrent use; each screen owns its own.
type DialogController[T any] struct {
	checker *rbac.Checker
	module  string
	state   DialogState[T]
}

func NewDialogController[T any](c *rbac.Checker, module string) *DialogController[T] {
	return &DialogController[T]{checker: c, module: module}
}

// OpenFor opens the dialog in mode for row. It refuses, leaving the
// state untouched, when the user lacks the permission the mode needs or
// when a row-bound mode gets no row.
func (d *DialogController[T]) OpenFor(mode Mode, row *T) bool {
	action := mode.Action()
	if action == "" || !d.checker.Can(d.module, action) {
		return false
	}
	if mode != ModeAdd && row == nil {
		return false
	}
	if mode == ModeAdd {
		row = nil
	}
	d.state = DialogState[T]{Open: &mode, CurrentRow: row}
	return true
}

// Close clears both the mode and the row.
func (d *DialogController[T]) Close() {
	d.state = DialogState[T]{}
}

// IsOpen reports whether the dialog is open in mode.
func (d *DialogController[T]) IsOpen(mode Mode) bool {
	return d.state.Open != nil && *d.state.Open == mode
}

// CurrentRow returns the targeted row, or nil.
func (d *DialogController[T]) CurrentRow() *T {
	return d.state.CurrentRow
}

// State returns a copy of the current state.
func (d *DialogController[T]) State() DialogState[T] {
	return d.state
}
