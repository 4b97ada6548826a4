package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// IdentityStore loads identities for login and refresh.
type IdentityStore interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
	GetIdentity(ctx context.Context, userID string) (*Identity, error)
}

// CookieConfig describes the browser session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// HandlerConfig holds the collaborators of the auth handler.
type HandlerConfig struct {
	TokenSvc *TokenService
	Store    IdentityStore
	Cookie   CookieConfig
	// Redirect picks the post-login destination from the requested one.
	// When nil the requested path is dropped and "/" is used.
	Redirect func(identity *Identity, requested string) string
	Audit    AuditLogger
}

// Handler handles authentication HTTP endpoints.
type Handler struct {
	tokenSvc *TokenService
	store    IdentityStore
	cookie   CookieConfig
	redirect func(*Identity, string) string
	audit    AuditLogger
	validate *validator.Validate
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "millerp_session"
	}
	if cfg.Redirect == nil {
		cfg.Redirect = func(*Identity, string) string { return "/" }
	}
	return &Handler{
		tokenSvc: cfg.TokenSvc,
		store:    cfg.Store,
		cookie:   cfg.Cookie,
		redirect: cfg.Redirect,
		audit:    cfg.Audit,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes registers auth routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
	mux.HandleFunc("POST /auth/token/refresh", h.HandleRefresh)
	mux.HandleFunc("POST /auth/logout", h.HandleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Redirect string `json:"redirect" validate:"max=2048"`
}

type sessionResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	Redirect     string    `json:"redirect,omitempty"`
	Identity     *Identity `json:"identity"`
}

// HandleLogin checks credentials, sets the session cookie and tells the
// client where to go next.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "user store not configured"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	identity, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserInactive), errors.Is(err, ErrMillSuspended):
			h.logAudit(r.Context(), AuditEvent{
				Action:   ActionLoginFailed,
				Metadata: map[string]any{"email": req.Email, "reason": err.Error()},
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		default:
			slog.Error("login failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		}
		return
	}

	resp, err := h.issue(w, identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}
	resp.Redirect = h.redirect(identity, req.Redirect)

	h.logAudit(r.Context(), AuditEvent{
		MillID: identity.MillID,
		UserID: identity.UserID,
		Action: ActionLogin,
		Metadata: map[string]any{
			"role": identity.Role,
		},
	})
	writeJSON(w, http.StatusOK, resp)
}

// HandleRefresh exchanges a refresh token for a new session snapshot.
// Role and permissions are reloaded so staff edits take effect; refresh
// tokens carry no grants, so there is no snapshot to issue without a store.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "user store not configured"})
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	identity, err := h.tokenSvc.ValidateToken(req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}
	if identity.TokenType != TokenTypeRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token required"})
		return
	}

	fresh, err := h.store.GetIdentity(r.Context(), identity.UserID)
	switch {
	case err == nil:
		identity = fresh
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrUserInactive), errors.Is(err, ErrMillSuspended):
		h.clearCookie(w)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	default:
		slog.Error("refresh identity reload failed", "error", err, "user_id", identity.UserID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "identity loading failed"})
		return
	}

	resp, err := h.issue(w, identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout clears the session cookie. Tokens are stateless and simply
// expire.
func (h *Handler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issue(w http.ResponseWriter, identity *Identity) (*sessionResponse, error) {
	identity.TokenType = TokenTypeAccess
	accessToken, err := h.tokenSvc.CreateAccessToken(identity)
	if err != nil {
		return nil, err
	}
	refreshToken, err := h.tokenSvc.CreateRefreshToken(identity)
	if err != nil {
		return nil, err
	}

	ttl := h.tokenSvc.AccessTTL()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	return &sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(ttl.Seconds()),
		Identity:     identity,
	}, nil
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) logAudit(ctx context.Context, event AuditEvent) {
	if h.audit != nil {
		h.audit.Log(ctx, event)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
