package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ovr-admin/ovr-admin/internal/audit"
	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	guard   Guard
	now     func() time.Time
}

// NewHandler creates the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		guard:   guard,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	query := r.URL.Query()
	now := h.now().UTC()
	toTime := now
	if toStr := strings.TrimSpace(query.Get("to")); toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "to"}
		}
		toTime = parsed.Add(24 * time.Hour)
	}
	fromTime := toTime.Add(-defaultDateRange)
	if fromStr := strings.TrimSpace(query.Get("from")); fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "from"}
		}
		fromTime = parsed
	}
	if !fromTime.Before(toTime) {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}
	filters := audit.TimelineFilters{
		From:   fromTime,
		To:     toTime,
		Actor:  query.Get("actor"),
		Entity: query.Get("entity"),
		Action: query.Get("action"),
	}
	if page := strings.TrimSpace(query.Get("page")); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		filters.Page = n
	}
	if size := strings.TrimSpace(query.Get("pageSize")); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n < 1 {
			return audit.TimelineFilters{}, validationError{field: "pageSize"}
		}
		filters.PageSize = n
	}
	return filters, nil
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	field := "filters"
	if v, ok := err.(validationError); ok {
		field = v.field
	}
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Fields: map[string]string{field: "invalid"},
	})
}

func (h *Handler) handleServerError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
