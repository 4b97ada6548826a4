package ui_test

import (
	"encoding/json"
	"testing"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/rbac"
	"github.com/millerp/millerp/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purchaseRow struct {
	ID      string `json:"id"`
	Variety string `json:"variety"`
}

func TestParseMode(t *testing.T) {
	m, ok := ui.ParseMode("edit")
	assert.True(t, ok)
	assert.Equal(t, ui.ModeEdit, m)

	_, ok = ui.ParseMode("archive")
	assert.False(t, ok)
}

func TestMode_Action(t *testing.T) {
	assert.Equal(t, rbac.ActionCreate, ui.ModeAdd.Action())
	assert.Equal(t, rbac.ActionEdit, ui.ModeEdit.Action())
	assert.Equal(t, rbac.ActionDelete, ui.ModeDelete.Action())
	assert.Equal(t, rbac.ActionView, ui.ModeView.Action())
	assert.Empty(t, ui.Mode("archive").Action())
}

func TestDialogController_OpenAndClose(t *testing.T) {
	c := staffChecker(auth.Grant{ModuleSlug: "paddy-purchase-report", Actions: []string{"view", "edit"}})
	d := ui.NewDialogController[purchaseRow](c, "paddy-purchase-report")

	row := &purchaseRow{ID: "p-7", Variety: "Sona Masoori"}
	require.True(t, d.OpenFor(ui.ModeEdit, row))
	assert.True(t, d.IsOpen(ui.ModeEdit))
	assert.False(t, d.IsOpen(ui.ModeView))
	assert.Same(t, row, d.CurrentRow())

	d.Close()
	assert.False(t, d.IsOpen(ui.ModeEdit))
	assert.Nil(t, d.CurrentRow())
	assert.Nil(t, d.State().Open)
}

func TestDialogController_RefusesUngrantedModes(t *testing.T) {
	c := staffChecker(auth.Grant{ModuleSlug: "paddy-purchase-report", Actions: []string{"view", "edit"}})
	d := ui.NewDialogController[purchaseRow](c, "paddy-purchase-report")
	row := &purchaseRow{ID: "p-7"}

	require.True(t, d.OpenFor(ui.ModeView, row))

	assert.False(t, d.OpenFor(ui.ModeDelete, row))
	assert.False(t, d.OpenFor(ui.ModeAdd, nil))
	assert.False(t, d.OpenFor(ui.Mode("archive"), row))

	// Refusals leave the previous dialog in place.
	assert.True(t, d.IsOpen(ui.ModeView))
}

func TestDialogController_RowBoundModesNeedRow(t *testing.T) {
	d := ui.NewDialogController[purchaseRow](rbac.NewChecker(&auth.Identity{Role: "mill-admin"}), "paddy-purchase-report")

	assert.False(t, d.OpenFor(ui.ModeEdit, nil))
	assert.True(t, d.OpenFor(ui.ModeAdd, &purchaseRow{ID: "ignored"}))
	assert.Nil(t, d.CurrentRow())
}

func TestDialogController_NoSession(t *testing.T) {
	d := ui.NewDialogController[purchaseRow](rbac.NewChecker(nil), "paddy-purchase-report")
	assert.False(t, d.OpenFor(ui.ModeView, &purchaseRow{ID: "p-1"}))
}

func TestDialogState_JSON(t *testing.T) {
	d := ui.NewDialogController[purchaseRow](rbac.NewChecker(&auth.Identity{Role: "mill-admin"}), "paddy-purchase-report")

	b, err := json.Marshal(d.State())
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":null,"current_row":null}`, string(b))

	require.True(t, d.OpenFor(ui.ModeDelete, &purchaseRow{ID: "p-9", Variety: "IR-64"}))
	b, err = json.Marshal(d.State())
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":"delete","current_row":{"id":"p-9","variety":"IR-64"}}`, string(b))
}
