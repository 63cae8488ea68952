package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/platform/httpx"
)

// PermissionsHandler serves the permission matrix editor.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.matrix)
	r.Get("/catalog", h.catalog)
	r.Post("/", h.save)
}

func (h *PermissionsHandler) matrix(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Matrix(r.Context(), principal)
	if err != nil {
		h.fail(w, "read permission matrix", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *PermissionsHandler) catalog(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	modules, err := h.service.Catalog(r.Context(), principal)
	if err != nil {
		h.fail(w, "read module catalog", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": modules})
}

func (h *PermissionsHandler) save(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SaveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Save(r.Context(), principal, req)
	if err != nil {
		h.fail(w, "save permission rules", err)
		return
	}
	status := http.StatusOK
	if result.Failed > 0 && result.Succeeded == 0 {
		status = http.StatusUnprocessableEntity
	}
	httpx.JSON(w, status, result)
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
