package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-fleet/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

type bearerContextKey struct{}

// ViaBearer reports whether the request principal came from a bearer token.
// Such requests carry no ambient cookie credentials and skip CSRF checks.
func ViaBearer(ctx context.Context) bool {
	v, _ := ctx.Value(bearerContextKey{}).(bool)
	return v
}

// PrincipalMiddleware resolves the request principal from a bearer token or
// the session cookie and stores it in the request context. Anonymous
// requests pass through without a principal.
func PrincipalMiddleware(service *Service, tokens *TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			source := SourceAddress(r)

			if raw, ok := bearerToken(r); ok {
				id, role, err := tokens.Parse(raw)
				if err != nil {
					logger.Debug("bearer token rejected", slog.String("source", source), slog.Any("error", err))
					httpx.RespondError(w, httpx.ErrUnauthorized)
					return
				}
				ctx = shared.ContextWithPrincipal(ctx, shared.Principal{ID: id, Role: role, SourceAddress: source})
				ctx = context.WithValue(ctx, bearerContextKey{}, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sess := shared.SessionFromContext(ctx)
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := sess.UserID()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.Resolve(ctx, userID)
			switch {
			case errors.Is(err, shared.ErrInvalidCredentials):
				logger.Info("session user no longer active", slog.Int64("user_id", userID))
				sess.Delete(shared.CSRFSessionKey)
				sess.ClearUser()
				next.ServeHTTP(w, r)
				return
			case err != nil:
				logger.Error("resolve session principal", slog.Any("error", err))
				httpx.RespondError(w, shared.ErrStoreUnavailable)
				return
			}
			ctx = shared.ContextWithPrincipal(ctx, shared.Principal{ID: user.ID, Role: user.Role, SourceAddress: source})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SourceAddress returns the client address without the port. It expects
// chi's RealIP middleware to have run.
func SourceAddress(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
