package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-fleet/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-fleet/internal/app"
	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-fleet/internal/audit/http"
	"github.com/odyssey-erp/odyssey-fleet/internal/auth"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/delivery/forecasts"
	"github.com/odyssey-erp/odyssey-fleet/internal/mutation"
	"github.com/odyssey-erp/odyssey-fleet/internal/observability"
	"github.com/odyssey-erp/odyssey-fleet/internal/parties"
	"github.com/odyssey-erp/odyssey-fleet/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-fleet/internal/platform/db"
	"github.com/odyssey-erp/odyssey-fleet/internal/rbac"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Error("load module catalog", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "authz" {
		os.Exit(cli.Run(ctx, os.Args[2:], os.Stdout, os.Stderr, func(ctx context.Context) (*cli.AuthzCLI, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return nil, nil, err
			}
			store := authz.NewStore(pool, catalog, logger, cfg.ReservedRoles()...)
			engine := authz.NewEngine(store, cfg.AuthzSuperRole,
				authz.WithLogger(logger),
				authz.WithSuperRoleAliases(cfg.AuthzSuperRoleAliases...),
			)
			c, err := cli.NewAuthzCLI(engine, catalog)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			return c, pool.Close, nil
		}))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	permissionStore := authz.NewStore(dbpool, catalog, logger, cfg.ReservedRoles()...)
	engine := authz.NewEngine(permissionStore, cfg.AuthzSuperRole,
		authz.WithLogger(logger),
		authz.WithObserver(metrics),
		authz.WithSuperRoleAliases(cfg.AuthzSuperRoleAliases...),
	)
	if len(cfg.AuthzSuperRoleAliases) > 0 {
		logger.Warn("super-role aliases active", slog.Any("aliases", cfg.AuthzSuperRoleAliases))
	}

	trail := audit.NewTrail()
	gateway := mutation.NewGateway(engine, dbpool, trail,
		mutation.WithLogger(logger),
		mutation.WithObserver(metrics),
	)

	authService := auth.NewService(auth.NewRepository(dbpool))
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	authHandler := auth.NewHandler(logger, authService, tokens, sessionManager, csrfManager)

	rbacService := rbac.NewService(permissionStore, gateway, cfg.AuthzSuperRole, logger)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService)
	rbacMiddleware := rbac.Middleware{Authorizer: gateway, Logger: logger}

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, gateway)

	partiesHandler := parties.NewHandler(logger, parties.NewService(dbpool, gateway))
	forecastsHandler := forecasts.NewHandler(logger, forecasts.NewService(dbpool, gateway))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthService:        authService,
		Tokens:             tokens,
		AuthHandler:        authHandler,
		AuditHandler:       auditHandler,
		PartiesHandler:     partiesHandler,
		ForecastsHandler:   forecastsHandler,
		PermissionsHandler: permissionsHandler,
		RBACMiddleware:     rbacMiddleware,
		DB:                 dbpool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("super_role", cfg.AuthzSuperRole))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func loadCatalog(cfg *app.Config) (*authz.Catalog, error) {
	if cfg.AuthzCatalogPath != "" {
		return authz.LoadCatalog(cfg.AuthzCatalogPath)
	}
	return authz.DefaultCatalog()
}

var _ app.Pinger = (*pgxpool.Pool)(nil)
