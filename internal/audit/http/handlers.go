package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-fleet/internal/audit"
	"github.com/odyssey-erp/odyssey-fleet/internal/authz"
	"github.com/odyssey-erp/odyssey-fleet/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fleet/internal/shared"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

// EventService defines the business contract for audit reporting.
type EventService interface {
	List(ctx context.Context, filters audit.Filters) (audit.Result, error)
	History(ctx context.Context, table string, recordID int64) ([]audit.EventView, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.EventView, error)
}

// Authorizer resolves whether the principal may read the audit trail.
type Authorizer interface {
	Authorize(ctx context.Context, principal shared.Principal, module, action string) error
}

// Handler menangani permintaan audit trail.
type Handler struct {
	logger  *slog.Logger
	service EventService
	authz   Authorizer
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service EventService, authorizer Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		authz:   authorizer,
		now:     time.Now,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit events", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	table := strings.TrimSpace(chi.URLParam(r, "table"))
	recordID, err := httpx.PathInt64(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.History(r.Context(), table, recordID)
	if err != nil {
		h.handleServerError(w, "load audit history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"table":     table,
		"record_id": recordID,
		"events":    rows,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit events", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-events.csv\"")
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format(dateLayout)
	}
	toTime, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return audit.Filters{}, invalid("to")
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format(dateLayout)
	}
	fromTime, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return audit.Filters{}, invalid("from")
	}
	if fromTime.After(toTime) {
		return audit.Filters{}, invalid("range")
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.Filters{}, invalid("range")
	}

	filters := audit.Filters{
		From:  fromTime,
		To:    toTime.AddDate(0, 0, 1), // "to" is inclusive
		Table: strings.TrimSpace(q.Get("table")),
		Page:  1,
	}
	if v := strings.TrimSpace(q.Get("action")); v != "" {
		switch v {
		case audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete:
			filters.Action = v
		default:
			return audit.Filters{}, invalid("action")
		}
	}
	if filters.RecordID, err = optionalID(q.Get("record_id")); err != nil {
		return audit.Filters{}, invalid("record_id")
	}
	if filters.ActorID, err = optionalID(q.Get("actor_id")); err != nil {
		return audit.Filters{}, invalid("actor_id")
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, invalid("page")
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, invalid("page_size")
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if h.authz == nil {
		httpx.RespondError(w, shared.ErrForbidden)
		return false
	}
	if err := h.authz.Authorize(r.Context(), principal, shared.ModuleAudit, authz.ActionRead); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func optionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id")
	}
	return id, nil
}

func invalid(field string) error {
	return fmt.Errorf("%w: %s is invalid", shared.ErrValidation, field)
}
