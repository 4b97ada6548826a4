package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/millerp/millerp/internal/audit"
	"github.com/millerp/millerp/internal/auth"
	"github.com/millerp/millerp/internal/guard"
	"github.com/millerp/millerp/internal/mill"
	"github.com/millerp/millerp/internal/platform/config"
	"github.com/millerp/millerp/internal/platform/database"
	"github.com/millerp/millerp/internal/platform/server"
	"github.com/millerp/millerp/internal/platform/telemetry"
	"github.com/millerp/millerp/internal/rbac"
	"github.com/millerp/millerp/internal/screens"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logFile := buildLogger(cfg.Log)
	if logFile != nil {
		defer logFile.Close()
	}
	telemetry.SetDefault(logger)

	slog.Info("millerp starting", "port", cfg.Server.Port)

	if cfg.Auth.JWT.SigningKey == "" {
		return errors.New("auth.jwt.signingkey is required")
	}

	// The route table is static; a bad table is a programming error and
	// must stop the process before it serves anything.
	routes := screens.Routes()
	table := screens.Table(routes)
	if err := screens.ValidateRoutes(routes); err != nil {
		return fmt.Errorf("validating route table: %w", err)
	}

	ctx := context.Background()
	var pool *database.Pool

	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		p, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("database connection failed, starting without DB", "error", err)
		} else {
			pool = p
			defer pool.Close()

			migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
			if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrations complete")
		}
	}

	// Audit
	var auditLogger audit.Logger = audit.NopLogger{}
	var auditHandler *audit.Handler
	var retention *audit.Retention
	if pool != nil {
		auditStore := audit.NewStore()
		auditLogger = audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushInterval) * time.Millisecond,
		}, logger)
		defer auditLogger.Close()
		auditHandler = audit.NewHandler(pool, auditStore)

		retention, err = buildRetention(pool, auditStore, cfg.Audit, logger)
		if err != nil {
			return err
		}
		slog.Info("audit logger started")
	}

	// Auth
	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)

	var identityStore auth.IdentityStore
	if pool != nil {
		identityStore = auth.NewStore(pool)
	}

	authHandler := auth.NewHandler(auth.HandlerConfig{
		TokenSvc: tokenSvc,
		Store:    identityStore,
		Cookie: auth.CookieConfig{
			Name:   cfg.Auth.Cookie.Name,
			Secure: cfg.Auth.Cookie.Secure,
		},
		Redirect: screens.PostLoginRedirect(table),
		Audit:    &authAuditAdapter{l: auditLogger},
	})

	// Navigation
	rbacAudit := &rbacAuditAdapter{l: auditLogger}
	routeGuard := guard.New(guard.Config{
		SignInPath:    cfg.Navigation.SignInPath,
		ForbiddenPath: cfg.Navigation.ForbiddenPath,
		Audit:         rbacAudit,
		Logger:        logger,
	})
	screenHandler := screens.NewHandler(routes, routeGuard)

	// Mills and staff
	var millHandler *mill.Handler
	var staffHandler *mill.StaffHandler
	if pool != nil {
		millHandler = mill.NewHandler(mill.NewStore(pool), auditLogger)
		staffHandler = mill.NewStaffHandler(pool, mill.NewStaffStore(), auditLogger)
	}

	devIdentity, err := buildDevIdentity(cfg.Auth)
	if err != nil {
		return err
	}
	if devIdentity != nil {
		slog.Warn("running in dev mode, authentication bypassed with 'Bearer dev'", "role", devIdentity.Role)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		Auth:               tokenSvc,
		AuthHandler:        authHandler,
		ScreenHandler:      screenHandler,
		MillHandler:        millHandler,
		StaffHandler:       staffHandler,
		AuditHandler:       auditHandler,
		RBACAuditLogger:    rbacAudit,
		SessionCookie:      cfg.Auth.Cookie.Name,
		DevMode:            cfg.Auth.DevMode,
		DevIdentity:        devIdentity,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
	})

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if retention != nil {
		g.Go(func() error {
			return retention.Run(gctx)
		})
	}

	slog.Info("server ready", "addr", addr, "dev_mode", cfg.Auth.DevMode, "screens", len(routes))
	return g.Wait()
}

// buildLogger returns the process logger and, when a log file is
// configured, the rotating file the caller must close.
func buildLogger(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	if cfg.File == "" {
		return telemetry.NewLogger(cfg.Level, cfg.Format), nil
	}
	file := telemetry.NewRotatingWriter(telemetry.FileConfig{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
	return telemetry.NewLogger(cfg.Level, cfg.Format, os.Stderr, file), file
}

func buildRetention(db database.Querier, store *audit.Store, cfg config.AuditConfig, logger *slog.Logger) (*audit.Retention, error) {
	if cfg.RetentionDays <= 0 {
		return nil, nil
	}
	r, err := audit.NewRetention(db, store, audit.RetentionConfig{
		Schedule: cfg.RetentionSchedule,
		MaxAge:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring audit retention: %w", err)
	}
	return r, nil
}

// buildDevIdentity returns the identity accepted as "Bearer dev", or nil
// outside dev mode.
func buildDevIdentity(cfg config.AuthConfig) (*auth.Identity, error) {
	if !cfg.DevMode {
		return nil, nil
	}
	role, ok := rbac.ParseRole(cfg.DevRole)
	if !ok {
		return nil, fmt.Errorf("auth.devrole %q is not a known role", cfg.DevRole)
	}
	if role != rbac.RoleSuperAdmin && cfg.DevMillID == "" {
		return nil, fmt.Errorf("auth.devmillid is required for dev role %s", role)
	}
	identity := &auth.Identity{
		UserID:      "00000000-0000-0000-0000-000000000001",
		Email:       "dev@localhost",
		DisplayName: "Developer",
		Role:        string(role),
		Permissions: []auth.Grant{},
		TokenType:   auth.TokenTypeAccess,
	}
	if role != rbac.RoleSuperAdmin {
		identity.MillID = cfg.DevMillID
	}
	return identity, nil
}

// rbacAuditAdapter bridges audit.Logger to rbac.AuditLogger.
type rbacAuditAdapter struct {
	l audit.Logger
}

func (a *rbacAuditAdapter) Log(ctx context.Context, event rbac.AuditEvent) {
	a.l.Log(ctx, audit.Event{
		MillID:       event.MillID,
		UserID:       event.UserID,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		Metadata:     event.Metadata,
		Source:       event.Source,
	})
}

// authAuditAdapter bridges audit.Logger to auth.AuditLogger.
type authAuditAdapter struct {
	l audit.Logger
}

func (a *authAuditAdapter) Log(ctx context.Context, event auth.AuditEvent) {
	a.l.Log(ctx, audit.Event{
		MillID:       audit.ParseID(event.MillID),
		UserID:       audit.ParseID(event.UserID),
		Action:       event.Action,
		ResourceType: "session",
		Metadata:     event.Metadata,
		Source:       audit.SourceAPI,
	})
}
