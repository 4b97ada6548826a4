package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/millerp/millerp/internal/platform/database"
	"github.com/millerp/millerp/internal/platform/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler serves audit query endpoints.
type Handler struct {
	db    database.Querier
	store *Store
}

// NewHandler creates an audit query handler. A nil db serves empty results.
func NewHandler(db database.Querier, store *Store) *Handler {
	if store == nil {
		store = NewStore()
	}
	return &Handler{db: db, store: store}
}

// HandleListEvents returns audit events for the current mill.
// GET /api/v1/audit/events?limit=50&after=<rfc3339>&action=staff.updated
//
// Super-admin sessions have no mill of their own and pass ?mill_id= instead.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawMill := middleware.GetMillID(r.Context())
	if rawMill == "" {
		rawMill = q.Get("mill_id")
	}
	millID, err := uuid.Parse(rawMill)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mill context required"})
		return
	}

	params := ListEventsParams{MillID: millID, Limit: defaultListLimit}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxListLimit {
			params.Limit = n
		}
	}
	if v := q.Get("action"); v != "" {
		params.Action = &v
	}
	if v := q.Get("resource_type"); v != "" {
		params.ResourceType = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("user_id"); v != "" {
		params.UserID = ParseID(v)
	}
	if v := q.Get("after"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.After = &t
		}
	}
	if v := q.Get("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.Before = &t
		}
	}

	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []Record{}, "count": 0})
		return
	}

	records, err := h.store.List(r.Context(), h.db, params)
	if err != nil {
		slog.Error("listing audit events", "error", err, "mill_id", millID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if records == nil {
		records = []Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": records, "count": len(records)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
