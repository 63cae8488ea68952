package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-fleet/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	tokens         *TokenIssuer
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenIssuer, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		tokens:         tokens,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	IssueToken bool   `json:"issue_token"`
}

type loginResponse struct {
	User      UserView   `json:"user"`
	CSRFToken string     `json:"csrf_token,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		field := "request"
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = strings.ToLower(verrs[0].Field())
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", field+" is invalid")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("source", SourceAddress(r)))
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	resp := loginResponse{User: user.View()}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Renew(sess)
		sess.Delete(shared.CSRFSessionKey)
		sess.SetUser(user.ID)
		token, err := h.csrfManager.EnsureToken(r.Context(), sess)
		if err != nil {
			h.logger.Error("issue csrf token", slog.Any("error", err))
		}
		resp.CSRFToken = token
	} else {
		h.logger.Error("session missing during login")
	}
	if req.IssueToken && h.tokens.Enabled() {
		token, expiresAt, err := h.tokens.Issue(user)
		if err != nil {
			h.logger.Error("issue bearer token", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		resp.Token = token
		resp.ExpiresAt = &expiresAt
	}
	h.logger.Info("login succeeded", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body := map[string]any{"id": principal.ID, "role": principal.Role}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && !ViaBearer(r.Context()) {
		if token, err := h.csrfManager.EnsureToken(r.Context(), sess); err == nil {
			body["csrf_token"] = token
		}
	}
	httpx.JSON(w, http.StatusOK, body)
}
