package mill

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/millerp/millerp/internal/audit"
	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/platform/database"
	"github.com/millerp/millerp/internal/platform/middleware"
)

// StaffRepository is the staff persistence used by StaffHandler.
type StaffRepository interface {
	Create(ctx context.Context, q database.Querier, n NewStaff) (*Staff, error)
	GetByID(ctx context.Context, q database.Querier, id string) (*Staff, error)
	List(ctx context.Context, q database.Querier) ([]Staff, error)
	Update(ctx context.Context, q database.Querier, id string, u StaffUpdate) (*Staff, error)
	SetPermissions(ctx context.Context, q database.Querier, id string, grants []auth.Grant) (*Staff, error)
	Deactivate(ctx context.Context, q database.Querier, id string) (*Staff, error)
}

type millScope func(ctx context.Context, millID string, fn func(ctx context.Context, q database.Querier) error) error

// StaffHandler serves the staff directory and the staff-edit flow of the
// caller's mill. Role and permission checks are applied by the router.
type StaffHandler struct {
	store    StaffRepository
	auditLog audit.Logger
	validate *validator.Validate
	withMill millScope
}

func NewStaffHandler(pool *pgxpool.Pool, store StaffRepository, auditLog audit.Logger) *StaffHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &StaffHandler{
		store:    store,
		auditLog: auditLog,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		withMill: func(ctx context.Context, millID string, fn func(ctx context.Context, q database.Querier) error) error {
			return database.WithMillConnection(ctx, pool, millID, fn)
		},
	}
}

type createStaffRequest struct {
	Email       string       `json:"email" validate:"required,email,max=254"`
	DisplayName string       `json:"display_name" validate:"max=200"`
	Password    string       `json:"password" validate:"required,min=8,max=72"`
	Role        string       `json:"role" validate:"required,oneof=mill-admin mill-staff"`
	Permissions []auth.Grant `json:"permissions"`
}

type updateStaffRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=200"`
	Role        *string `json:"role" validate:"omitempty,oneof=mill-admin mill-staff"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type permissionsRequest struct {
	Permissions []auth.Grant `json:"permissions" validate:"required"`
}

// HandleCreate adds a staff member to the caller's mill.
func (h *StaffHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	millID, ok := requireMill(w, r)
	if !ok {
		return
	}

	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, password (8-72 chars) and role mill-admin or mill-staff are required"})
		return
	}
	perms, err := NormalizePermissions(req.Permissions)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var staff *Staff
	err = h.withMill(r.Context(), millID, func(ctx context.Context, q database.Querier) error {
		var createErr error
		staff, createErr = h.store.Create(ctx, q, NewStaff{
			Email:        req.Email,
			DisplayName:  req.DisplayName,
			Role:         req.Role,
			PasswordHash: hash,
			Permissions:  perms,
		})
		return createErr
	})
	if err != nil {
		h.writeStoreError(w, err, "staff creation failed")
		return
	}

	h.logStaffEvent(r, audit.ActionStaffCreated, staff, map[string]any{
		"role":    staff.Role,
		"modules": len(staff.Permissions),
	})
	writeJSON(w, http.StatusCreated, staff)
}

// HandleGet returns one staff member.
func (h *StaffHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	millID, ok := requireMill(w, r)
	if !ok {
		return
	}
	id, ok := requireStaffID(w, r)
	if !ok {
		return
	}

	var staff *Staff
	err := h.withMill(r.Context(), millID, func(ctx context.Context, q database.Querier) error {
		var getErr error
		staff, getErr = h.store.GetByID(ctx, q, id)
		return getErr
	})
	if err != nil {
		h.writeStoreError(w, err, "fetching staff failed")
		return
	}

	writeJSON(w, http.StatusOK, staff)
}

// HandleList returns the staff of the caller's mill.
func (h *StaffHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	millID, ok := requireMill(w, r)
	if !ok {
		return
	}

	var staff []Staff
	err := h.withMill(r.Context(), millID, func(ctx context.Context, q database.Querier) error {
		var listErr error
		staff, listErr = h.store.List(ctx, q)
		return listErr
	})
	if err != nil {
		h.writeStoreError(w, err, "listing staff failed")
		return
	}
	if staff == nil {
		staff = []Staff{}
	}

	writeJSON(w, http.StatusOK, staff)
}

// HandleUpdate changes the profile, role or status of a staff member.
func (h *StaffHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	millID, id, ok := h.editTarget(w, r)
	if !ok {
		return
	}

	var req updateStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role or status"})
		return
	}

	var staff *Staff
	err := h.withMill(r.Context(), millID, func(ctx context.Context, q database.Querier) error {
		var updateErr error
		staff, updateErr = h.store.Update(ctx, q, id, StaffUpdate{
			DisplayName: req.DisplayName,
			Role:        req.Role,
			Status:      req.Status,
		})
		return updateErr
	})
	if err != nil {
		h.writeStoreError(w, err, "updating staff failed")
		return
	}

	h.logStaffEvent(r, audit.ActionStaffUpdated, staff, map[string]any{
		"role":   staff.Role,
		"status": staff.Status,
	})
	writeJSON(w, http.StatusOK, staff)
}

// HandleSetPermissions replaces the permission list of a staff member.
func (h *StaffHandler) HandleSetPermissions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	millID, id, ok := h.editTarget(w, r)
	if !ok {
		return
	}

	var req permissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "permissions list is required"})
		return
	}
	perms, err := NormalizePermissions(req.Permissions)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var staff *Staff
	err = h.withMill(r.Context(), millID, func(ctx context.Context, q database.Querier) error {
		var setErr error
		staff, setErr = h.store.SetPermissions(ctx, q, id, perms)
		return setErr
	})
	if err != nil {
		h.writeStoreError(w, err, "updating permissions failed")
		return
	}

	h.logStaffEvent(r, audit.ActionStaffPermsUpdated, staff, map[string]any{
		"permissions": staff.Permissions,
	})
	writeJSON(w, http.StatusOK, staff)
}

// HandleDeactivate marks a staff member inactive.
func (h *StaffHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	millID, id, ok := h.editTarget(w, r)
	if !ok {
		return
	}

	var staff *Staff
	err := h.withMill(r.Context(), millID, func(ctx context.Context, q database.Querier) error {
		var deactivateErr error
		staff, deactivateErr = h.store.Deactivate(ctx, q, id)
		return deactivateErr
	})
	if err != nil {
		h.writeStoreError(w, err, "deactivating staff failed")
		return
	}

	h.logStaffEvent(r, audit.ActionStaffDeactivated, staff, nil)
	writeJSON(w, http.StatusOK, staff)
}

// editTarget resolves the mill and staff ID of an edit request and refuses
// edits of the caller's own record.
func (h *StaffHandler) editTarget(w http.ResponseWriter, r *http.Request) (millID, id string, ok bool) {
	millID, ok = requireMill(w, r)
	if !ok {
		return "", "", false
	}
	id, ok = requireStaffID(w, r)
	if !ok {
		return "", "", false
	}
	if isSelf(auth.GetIdentity(r.Context()), id) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": ErrSelfEdit.Error()})
		return "", "", false
	}
	return millID, id, true
}

// isSelf compares UUID values, not their spelling.
func isSelf(identity *auth.Identity, id string) bool {
	if identity == nil {
		return false
	}
	self, target := audit.ParseID(identity.UserID), audit.ParseID(id)
	return self != nil && target != nil && *self == *target
}

func (h *StaffHandler) writeStoreError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ErrStaffNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrStaffNotFound.Error()})
	case errors.Is(err, ErrEmailDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidRole):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error(message, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": message})
	}
}

func (h *StaffHandler) logStaffEvent(r *http.Request, action string, staff *Staff, metadata map[string]any) {
	h.auditLog.Log(r.Context(), audit.Event{
		MillID:       audit.MillIDFromContext(r.Context()),
		UserID:       audit.ActorIDFromContext(r.Context()),
		Action:       action,
		ResourceType: "staff",
		ResourceID:   audit.ParseID(staff.ID),
		Metadata:     metadata,
		Source:       audit.SourceAPI,
	})
}

func requireMill(w http.ResponseWriter, r *http.Request) (string, bool) {
	millID := middleware.GetMillID(r.Context())
	if millID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mill context required"})
		return "", false
	}
	return millID, true
}

// requireStaffID returns the path ID in canonical lowercase form, so every
// spelling of a UUID names the same record.
func requireStaffID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := audit.ParseID(r.PathValue("id"))
	if id == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid staff id"})
		return "", false
	}
	return id.String(), true
}
