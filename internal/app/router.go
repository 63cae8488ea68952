package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/odyssey-fleet/internal/audit/http"
	"github.com/odyssey-erp/odyssey-fleet/internal/auth"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/delivery/forecasts"
	"github.com/odyssey-erp/odyssey-fleet/internal/observability"
	"github.com/odyssey-erp/odyssey-fleet/internal/parties"
	"github.com/odyssey-erp/odyssey-fleet/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fleet/internal/rbac"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Pinger reports database liveness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthService        *auth.Service
	Tokens             *auth.TokenIssuer
	AuthHandler        *auth.Handler
	AuditHandler       *audithttp.Handler
	PartiesHandler     *parties.Handler
	ForecastsHandler   *forecasts.Handler
	PermissionsHandler *rbac.PermissionsHandler
	RBACMiddleware     rbac.Middleware
	DB                 Pinger
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		AuthService:    params.AuthService,
		Tokens:         params.Tokens,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("healthz ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.PartiesHandler != nil {
		r.Route("/parties", func(r chi.Router) {
			r.Use(readGate(params.RBACMiddleware, shared.ModuleParties))
			params.PartiesHandler.MountRoutes(r)
		})
	}
	if params.ForecastsHandler != nil {
		r.Route("/forecasts", func(r chi.Router) {
			r.Use(readGate(params.RBACMiddleware, shared.ModuleForecasts))
			params.ForecastsHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// readGate applies the Read check to safe methods only. A role may hold
// Create without Read, so writes are left to the gateway's own decision.
func readGate(m rbac.Middleware, module string) func(http.Handler) http.Handler {
	require := m.RequireAction(module, authz.ActionRead)
	return func(next http.Handler) http.Handler {
		gated := require(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				gated.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
