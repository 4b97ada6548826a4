package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/millerp/millerp/internal/auth"
)

// AuditLogger is the audit interface for denial logging.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent)
}

// AuditEvent captures an auditable denial.
type AuditEvent struct {
	MillID       *uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	Metadata     map[string]any
	Source       string
}

// ActionAccessDenied is the audit action recorded for every denial.
const ActionAccessDenied = "access.denied"

// MiddlewareOption configures RBAC middleware behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit AuditLogger
}

// WithAuditLogger attaches an audit logger to log denials.
func WithAuditLogger(logger AuditLogger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// RequireAction rejects API requests whose user cannot perform action on
// module. This is the server-side counterpart of every UI gate.
func RequireAction(module string, action Action, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	return enforce(opts, func(c *Checker) Decision {
		if c.Can(module, action) {
			return Decision{Allowed: true}
		}
		return Decision{Reason: fmt.Sprintf("%s on %s not granted", action, module)}
	}, map[string]any{"module": module, "action": string(action)})
}

// RequireRole rejects API requests from users outside roles.
func RequireRole(roles []Role, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return enforce(opts, func(c *Checker) Decision {
		if c.HasRole(roles...) {
			return Decision{Allowed: true}
		}
		return Decision{Reason: "role not permitted"}
	}, map[string]any{"roles": names})
}

func enforce(opts []MiddlewareOption, decide func(*Checker) Decision, meta map[string]any) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			decision := decide(NewChecker(identity))
			if !decision.Allowed {
				if mc.audit != nil {
					metadata := map[string]any{
						"path":   r.URL.Path,
						"method": r.Method,
						"reason": decision.Reason,
					}
					for k, v := range meta {
						metadata[k] = v
					}
					mc.audit.Log(r.Context(), DenialEvent(identity, "api", metadata))
				}
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":  "forbidden",
					"reason": decision.Reason,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DenialEvent builds an access.denied audit event for identity, which may be nil.
func DenialEvent(identity *auth.Identity, source string, metadata map[string]any) AuditEvent {
	evt := AuditEvent{
		Action:       ActionAccessDenied,
		ResourceType: "module",
		Metadata:     metadata,
		Source:       source,
	}
	if identity != nil {
		if mid, err := uuid.Parse(identity.MillID); err == nil {
			evt.MillID = &mid
		}
		if uid, err := uuid.Parse(identity.UserID); err == nil {
			evt.UserID = &uid
		}
	}
	return evt
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
