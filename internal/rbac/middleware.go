package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-fleet/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Middleware wires policy checks in front of HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// RequireAction rejects the request unless the current principal may perform
// action on module. Missing principals get 401, denials 403.
func (m Middleware) RequireAction(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := httpx.CurrentPrincipal(r)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if m.Authorizer == nil {
				if m.Logger != nil {
					m.Logger.Error("rbac middleware without authorizer", slog.String("module", module))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			if err := m.Authorizer.Authorize(r.Context(), principal, module, action); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
