package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type identityContextKey struct{}

var (
	errNoCredentials     = errors.New("missing authorization header")
	errMalformedHeader   = errors.New("invalid authorization header format")
	errAccessTokenNeeded = errors.New("access token required")
)

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetIdentity retrieves the authenticated identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}

// MiddlewareOption configures how credentials are read from a request.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	cookieName  string
	devIdentity *Identity
}

// WithSessionCookie also accepts the access token from the named cookie
// when no Authorization header is present.
func WithSessionCookie(name string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.cookieName = name
	}
}

// WithDevIdentity accepts "Bearer dev" as the given identity. Dev mode only.
func WithDevIdentity(identity *Identity) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.devIdentity = identity
	}
}

// Middleware rejects requests without a valid access token with 401.
func Middleware(tokenSvc *TokenService, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := mc.authenticate(tokenSvc, r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Attach sets the identity on the context when the request carries a
// valid access token and passes every request through. Screen routes use
// it so the route guard can tell anonymous visitors apart.
func Attach(tokenSvc *TokenService, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, err := mc.authenticate(tokenSvc, r); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newMiddlewareConfig(opts []MiddlewareOption) *middlewareConfig {
	mc := &middlewareConfig{}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

func (mc *middlewareConfig) authenticate(tokenSvc *TokenService, r *http.Request) (*Identity, error) {
	token, err := mc.extractToken(r)
	if err != nil {
		return nil, err
	}

	if token == "dev" && mc.devIdentity != nil {
		return mc.devIdentity, nil
	}

	identity, err := tokenSvc.ValidateToken(token)
	if err != nil {
		return nil, errors.New("invalid token")
	}

	// Refresh tokens are only accepted by the refresh endpoint.
	if identity.TokenType != TokenTypeAccess {
		return nil, errAccessTokenNeeded
	}
	return identity, nil
}

func (mc *middlewareConfig) extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if mc.cookieName != "" {
			if c, err := r.Cookie(mc.cookieName); err == nil && c.Value != "" {
				return c.Value, nil
			}
		}
		return "", errNoCredentials
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errMalformedHeader
	}
	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
