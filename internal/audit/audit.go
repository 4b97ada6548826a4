package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/platform/middleware"
)

// Event represents a single auditable action in a mill.
type Event struct {
	MillID       *uuid.UUID // nil for platform-level events
	UserID       *uuid.UUID // nil for system events
	Action       string     // e.g. "access.denied", "staff.permissions_updated"
	ResourceType string     // e.g. "staff", "mill", "screen"
	ResourceID   *uuid.UUID
	Metadata     map[string]any
	Source       string // "api", "navigation", "system"
}

const (
	SourceAPI        = "api"
	SourceNavigation = "navigation"
	SourceSystem     = "system"
)

const (
	ActionAccessDenied      = "access.denied"
	ActionLogin             = "session.login"
	ActionLoginFailed       = "session.login_failed"
	ActionMillCreated       = "mill.created"
	ActionMillStatusChanged = "mill.status_changed"
	ActionStaffCreated      = "staff.created"
	ActionStaffUpdated      = "staff.updated"
	ActionStaffDeactivated  = "staff.deactivated"
	ActionStaffPermsUpdated = "staff.permissions_updated"
)

const (
	MetadataPath    = "path"
	MetadataOutcome = "outcome"
	MetadataModule  = "module"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorIDFromContext extracts the authenticated user's UUID from the
// request context, returning nil if no identity is present or the
// user ID is not a valid UUID.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	identity := auth.GetIdentity(ctx)
	if identity == nil {
		return nil
	}
	return ParseID(identity.UserID)
}

// MillIDFromContext returns the request's mill as a UUID, or nil.
func MillIDFromContext(ctx context.Context) *uuid.UUID {
	return ParseID(middleware.GetMillID(ctx))
}

// ParseID parses s as a UUID, returning nil for empty or malformed input.
func ParseID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
