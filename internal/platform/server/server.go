package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/millerp/millerp/internal/audit"
	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/mill"
	"github.com/millerp/millerp/internal/platform/middleware"
	"github.com/millerp/millerp/internal/rbac"
	"github.com/millerp/millerp/internal/screens"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Auth               *auth.TokenService
	AuthHandler        *auth.Handler
	ScreenHandler      *screens.Handler
	MillHandler        *mill.Handler
	StaffHandler       *mill.StaffHandler
	AuditHandler       *audit.Handler
	RBACAuditLogger    rbac.AuditLogger
	SessionCookie      string
	DevMode            bool
	DevIdentity        *auth.Identity
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer *http.Server
	pool       *pgxpool.Pool
	handler    http.Handler
	log        *slog.Logger
}

func New(addr string, deps Dependencies) *Server {
	var authOpts []auth.MiddlewareOption
	if deps.SessionCookie != "" {
		authOpts = append(authOpts, auth.WithSessionCookie(deps.SessionCookie))
	}
	if deps.DevMode && deps.DevIdentity != nil {
		authOpts = append(authOpts, auth.WithDevIdentity(deps.DevIdentity))
	}

	// API routes under /api/ require a session.
	protectedMux := http.NewServeMux()
	var protectedHandler http.Handler = middleware.MillContext(protectedMux)
	if deps.Auth != nil {
		protectedHandler = auth.Middleware(deps.Auth, authOpts...)(protectedHandler)
	}

	// Screen routes attach the session if present and leave the decision
	// to the route guard.
	screenMux := http.NewServeMux()
	var screenHandler http.Handler = screenMux
	if deps.Auth != nil {
		screenHandler = auth.Attach(deps.Auth, authOpts...)(screenHandler)
	}

	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		pool: deps.Pool,
		log:  deps.Logger,
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(topMux)
	}
	if deps.ScreenHandler != nil {
		deps.ScreenHandler.RegisterRoutes(screenMux)
	}

	var rbacOpts []rbac.MiddlewareOption
	if deps.RBACAuditLogger != nil {
		rbacOpts = append(rbacOpts, rbac.WithAuditLogger(deps.RBACAuditLogger))
	}
	superAdmin := rbac.RequireRole([]rbac.Role{rbac.RoleSuperAdmin}, rbacOpts...)
	millAdmin := rbac.RequireRole([]rbac.Role{rbac.RoleMillAdmin}, rbacOpts...)

	protectedMux.HandleFunc("GET /api/v1/access/can", rbac.HandleCan)
	if deps.ScreenHandler != nil {
		protectedMux.HandleFunc("GET /api/v1/navigation", deps.ScreenHandler.HandleNavigation)
	}

	// Platform routes (mill provisioning)
	if deps.MillHandler != nil {
		protectedMux.Handle("POST /api/v1/mills", superAdmin(http.HandlerFunc(deps.MillHandler.HandleCreate)))
		protectedMux.Handle("GET /api/v1/mills", superAdmin(http.HandlerFunc(deps.MillHandler.HandleList)))
		protectedMux.Handle("GET /api/v1/mills/{id}", superAdmin(http.HandlerFunc(deps.MillHandler.HandleGet)))
		protectedMux.Handle("PUT /api/v1/mills/{id}/status", superAdmin(http.HandlerFunc(deps.MillHandler.HandleSetStatus)))
	}

	// Staff routes (mill-scoped). Reads follow the staff-directory grant,
	// edits are reserved to mill admins.
	if deps.StaffHandler != nil {
		viewStaff := rbac.RequireAction(screens.StaffDirectory, rbac.ActionView, rbacOpts...)
		protectedMux.Handle("GET /api/v1/staff", viewStaff(http.HandlerFunc(deps.StaffHandler.HandleList)))
		protectedMux.Handle("GET /api/v1/staff/{id}", viewStaff(http.HandlerFunc(deps.StaffHandler.HandleGet)))
		protectedMux.Handle("POST /api/v1/staff", millAdmin(http.HandlerFunc(deps.StaffHandler.HandleCreate)))
		protectedMux.Handle("PUT /api/v1/staff/{id}", millAdmin(http.HandlerFunc(deps.StaffHandler.HandleUpdate)))
		protectedMux.Handle("PUT /api/v1/staff/{id}/permissions", millAdmin(http.HandlerFunc(deps.StaffHandler.HandleSetPermissions)))
		protectedMux.Handle("DELETE /api/v1/staff/{id}", millAdmin(http.HandlerFunc(deps.StaffHandler.HandleDeactivate)))
	}

	if deps.AuditHandler != nil {
		protectedMux.Handle("GET /api/v1/audit/events",
			rbac.RequireRole([]rbac.Role{rbac.RoleSuperAdmin, rbac.RoleMillAdmin}, rbacOpts...)(
				http.HandlerFunc(deps.AuditHandler.HandleListEvents),
			),
		)
	}

	topMux.Handle("/api/", protectedHandler)
	topMux.Handle("/", screenHandler)

	// Wrap top-level mux with observability middleware
	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	s.log.Info("millerp listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("millerp shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports each dependency under "checks"; any failing
// check makes the whole response 503.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	db := "ok"
	switch {
	case s.pool == nil:
		db = "not configured"
	default:
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pool.Ping(ctx); err != nil {
			s.log.WarnContext(r.Context(), "readiness ping failed", "error", err)
			db = "unavailable"
		}
	}

	status, code := "ready", http.StatusOK
	if db != "ok" {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": map[string]string{"database": db},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
