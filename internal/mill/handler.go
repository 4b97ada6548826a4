package mill

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/millerp/millerp/internal/audit"
)

// Repository is the mill persistence used by Handler.
type Repository interface {
	Create(ctx context.Context, name, slug string) (*Mill, error)
	GetByID(ctx context.Context, id string) (*Mill, error)
	List(ctx context.Context) ([]Mill, error)
	SetStatus(ctx context.Context, id, status string) (*Mill, error)
}

// Handler serves the super-admin mill endpoints. Role checks are applied
// by the router.
type Handler struct {
	store    Repository
	auditLog audit.Logger
	validate *validator.Validate
}

func NewHandler(store Repository, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{
		store:    store,
		auditLog: auditLog,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type createMillRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"required"`
}

// HandleCreate creates a new mill.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	var req createMillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and slug are required"})
		return
	}

	m, err := h.store.Create(r.Context(), req.Name, req.Slug)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSlug):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrSlugTaken):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			slog.Error("creating mill", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "mill creation failed"})
		}
		return
	}

	millID := audit.ParseID(m.ID)
	h.auditLog.Log(r.Context(), audit.Event{
		MillID:       millID,
		UserID:       audit.ActorIDFromContext(r.Context()),
		Action:       audit.ActionMillCreated,
		ResourceType: "mill",
		ResourceID:   millID,
		Metadata:     map[string]any{"slug": m.Slug},
		Source:       audit.SourceAPI,
	})

	writeJSON(w, http.StatusCreated, m)
}

// HandleGet returns a mill by ID.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if audit.ParseID(id) == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mill id"})
		return
	}

	m, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMillNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "mill not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fetching mill failed"})
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// HandleList returns all mills.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	mills, err := h.store.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing mills failed"})
		return
	}
	if mills == nil {
		mills = []Mill{}
	}

	writeJSON(w, http.StatusOK, mills)
}

// HandleSetStatus suspends or reactivates a mill.
// PUT /api/v1/mills/{id}/status {"status": "suspended"}
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	id := r.PathValue("id")
	if audit.ParseID(id) == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mill id"})
		return
	}

	var req struct {
		Status string `json:"status" validate:"required,oneof=active suspended"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be active or suspended"})
		return
	}

	m, err := h.store.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, ErrMillNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "mill not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "updating mill failed"})
		return
	}

	millID := audit.ParseID(m.ID)
	h.auditLog.Log(r.Context(), audit.Event{
		MillID:       millID,
		UserID:       audit.ActorIDFromContext(r.Context()),
		Action:       audit.ActionMillStatusChanged,
		ResourceType: "mill",
		ResourceID:   millID,
		Metadata:     map[string]any{"status": m.Status},
		Source:       audit.SourceAPI,
	})

	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
