package middleware

import (
	"context"
	"net/http"

	"github.com/millerp/millerp/internal/auth"
)

type millContextKey struct{}

// MillContext copies the mill of the authenticated identity into the request
// context. Super-admin sessions carry no mill and pass through unchanged.
func MillContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		if identity != nil && identity.MillID != "" {
			next.ServeHTTP(w, r.WithContext(WithMillID(r.Context(), identity.MillID)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithMillID stores a mill ID in the context.
func WithMillID(ctx context.Context, millID string) context.Context {
	return context.WithValue(ctx, millContextKey{}, millID)
}

// GetMillID returns the mill of the current request, or "" when none is set.
func GetMillID(ctx context.Context) string {
	if id, ok := ctx.Value(millContextKey{}).(string); ok {
		return id
	}
	return ""
}
