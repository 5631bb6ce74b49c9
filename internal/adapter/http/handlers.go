package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/water-compliance-api/internal/dashboard"
	"github.com/couchcryptid/water-compliance-api/internal/domain"
)

// Dashboard is the read API served under /api/v1.
type Dashboard interface {
	ReadinessChecker
	Overview(ctx context.Context) dashboard.Overview
	SystemsPage(ctx context.Context, page int) (dashboard.SystemsPage, error)
	CountiesPage(ctx context.Context, page int) (dashboard.CountiesPage, error)
	Trends(ctx context.Context) (dashboard.Trends, error)
	SystemDetail(ctx context.Context, pwsid string) (dashboard.SystemView, error)
	ViolationDetail(ctx context.Context, pwsid, violationID string) (domain.ViolationDetail, error)
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type handlers struct {
	d      Dashboard
	logger *slog.Logger
}

func registerDashboardRoutes(mux *http.ServeMux, d Dashboard, logger *slog.Logger) {
	h := &handlers{d: d, logger: logger}
	mux.HandleFunc("GET /api/v1/overview", h.overview)
	mux.HandleFunc("GET /api/v1/systems", h.systems)
	mux.HandleFunc("GET /api/v1/counties", h.counties)
	mux.HandleFunc("GET /api/v1/trends", h.trends)
	mux.HandleFunc("GET /api/v1/systems/{pwsid}", h.system)
	mux.HandleFunc("GET /api/v1/systems/{pwsid}/violations/{violationID}", h.violation)
}

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, h.d.Overview(r.Context()))
}

func (h *handlers) systems(w http.ResponseWriter, r *http.Request) {
	page, err := h.d.SystemsPage(r.Context(), pageParam(r))
	h.respond(w, r, page, err)
}

func (h *handlers) counties(w http.ResponseWriter, r *http.Request) {
	page, err := h.d.CountiesPage(r.Context(), pageParam(r))
	h.respond(w, r, page, err)
}

func (h *handlers) trends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.d.Trends(r.Context())
	h.respond(w, r, trends, err)
}

func (h *handlers) system(w http.ResponseWriter, r *http.Request) {
	view, err := h.d.SystemDetail(r.Context(), r.PathValue("pwsid"))
	h.respond(w, r, view, err)
}

func (h *handlers) violation(w http.ResponseWriter, r *http.Request) {
	detail, err := h.d.ViolationDetail(r.Context(), r.PathValue("pwsid"), r.PathValue("violationID"))
	h.respond(w, r, detail, err)
}

// Client-facing error messages. Backend detail stays in the log, keyed by
// request ID.
const (
	msgNotFound      = "not found"
	msgBackendFailed = "backend query failed"
)

// respond writes v, or maps err to 404 for missing records and 502 for
// backend failures.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err == nil {
		sharedobs.WriteJSON(w, http.StatusOK, v)
		return
	}

	reqID := RequestID(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorBody{Error: msgNotFound, RequestID: reqID})
		return
	}
	h.logger.Error("dashboard query failed", "path", r.URL.Path, "error", err, "request_id", reqID)
	sharedobs.WriteJSON(w, http.StatusBadGateway, errorBody{Error: msgBackendFailed, RequestID: reqID})
}

// pageParam reads ?page=, treating missing or malformed values as page 1.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
