package guard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/rbac"
)

// Config holds the fixed redirect destinations and collaborators.
type Config struct {
	SignInPath    string
	ForbiddenPath string
	Audit         rbac.AuditLogger
	Logger        *slog.Logger
}

// Guard wraps screen handlers with the navigation rules.
type Guard struct {
	signIn    string
	forbidden string
	audit     rbac.AuditLogger
	logger    *slog.Logger
}

func New(cfg Config) *Guard {
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/sign-in"
	}
	if cfg.ForbiddenPath == "" {
		cfg.ForbiddenPath = "/403"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Guard{
		signIn:    cfg.SignInPath,
		forbidden: cfg.ForbiddenPath,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
}

// SignInPath returns the sign-in destination.
func (g *Guard) SignInPath() string { return g.signIn }

// ForbiddenPath returns the forbidden destination.
func (g *Guard) ForbiddenPath() string { return g.forbidden }

// Wrap evaluates b on every request before calling next. Browsers are
// sent a 303; JSON clients get 401/403 with the same location.
func (g *Guard) Wrap(b Binding, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.GetIdentity(r.Context())
		outcome := Evaluate(identity, b)
		if outcome == Allowed {
			next.ServeHTTP(w, r)
			return
		}

		g.logger.DebugContext(r.Context(), "navigation denied",
			"path", r.URL.Path,
			"outcome", outcome.String(),
			"module", b.ModuleSlug,
		)

		status := http.StatusForbidden
		location := g.forbidden
		if outcome == Unauthenticated {
			status = http.StatusUnauthorized
			location = g.signInLocation(r.URL)
		} else if g.audit != nil {
			g.audit.Log(r.Context(), rbac.DenialEvent(identity, "navigation", map[string]any{
				"path":    r.URL.Path,
				"outcome": outcome.String(),
				"module":  b.ModuleSlug,
			}))
		}

		if wantsJSON(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":    http.StatusText(status),
				"outcome":  outcome.String(),
				"location": location,
			})
			return
		}
		http.Redirect(w, r, location, http.StatusSeeOther)
	})
}

// signInLocation keeps the original path and query for post-login return.
func (g *Guard) signInLocation(u *url.URL) string {
	q := url.Values{}
	q.Set("redirect", u.RequestURI())
	return g.signIn + "?" + q.Encode()
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// SafeRedirect returns target when it is a local path on this site and
// fallback otherwise. Absolute URLs and scheme-relative forms are refused.
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	if strings.ContainsAny(target, "\r\n\t") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}
