package auth

import (
	"context"
	"errors"
)

var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user is inactive")
	ErrMillSuspended      = errors.New("mill is suspended")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Grant is a single permission entry as carried in the session payload.
// Actions are raw strings; normalization happens in the rbac package.
type Grant struct {
	ModuleSlug string   `json:"module_slug"`
	Actions    []string `json:"actions"`
}

// Identity is the session snapshot of an authenticated user. A refresh
// replaces the whole value; it is never mutated in place.
type Identity struct {
	UserID      string  `json:"user_id"`
	MillID      string  `json:"mill_id,omitempty"` // empty for super-admins
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role"`
	Permissions []Grant `json:"permissions"`
	TokenType   string  `json:"token_type"` // "access" or "refresh"
}

// AuditLogger receives session events. Wired to the audit package in main.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent)
}

// AuditEvent describes a login attempt or similar session event.
type AuditEvent struct {
	MillID   string
	UserID   string
	Action   string
	Metadata map[string]any
}

const (
	ActionLogin       = "session.login"
	ActionLoginFailed = "session.login_failed"
)
