package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alertops/alertd/internal/api"
	"github.com/alertops/alertd/internal/database"
	"github.com/alertops/alertd/internal/middleware"
	"github.com/alertops/alertd/internal/services"
)

// AlertHandler handles alert ingestion, resolution and dashboard endpoints
type AlertHandler struct {
	alerts     *services.AlertService
	dashboards *services.DashboardService
	jwtAuth    *middleware.JWTAuth
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *services.AlertService, dashboards *services.DashboardService, jwtAuth *middleware.JWTAuth) *AlertHandler {
	return &AlertHandler{
		alerts:     alerts,
		dashboards: dashboards,
		jwtAuth:    jwtAuth,
	}
}

// SetupRoutes configures the alert routes
func (h *AlertHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/alerts", h.handleCollection)
	mux.HandleFunc("/api/alerts/", h.handleSubpath)
}

// handleCollection handles POST /api/alerts (ingestion)
func (h *AlertHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var payload services.CreateAlertPayload
	if err := api.DecodeJSON(r, &payload); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := h.alerts.CreateAlert(r.Context(), payload)
	if err != nil {
		if errors.Is(err, services.ErrMissingFields) {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.RespondInternalError(w, "AlertHandler", err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, alert)
}

// handleSubpath dispatches /api/alerts/... paths:
// dashboard/counts, dashboard/top-offenders, dashboard/auto-closed,
// {id}, {id}/resolve.
func (h *AlertHandler) handleSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	if parts[0] == "dashboard" && len(parts) == 2 {
		h.handleDashboard(w, r, parts[1])
		return
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleDetails(w, r, uint(id))
	case len(parts) == 2 && parts[1] == "resolve" && r.Method == http.MethodPost:
		h.jwtAuth.Require(func(w http.ResponseWriter, r *http.Request) {
			h.handleResolve(w, r, uint(id))
		})(w, r)
	default:
		api.RespondError(w, http.StatusNotFound, "Not found")
	}
}

func (h *AlertHandler) handleDetails(w http.ResponseWriter, r *http.Request, id uint) {
	alert, err := h.alerts.GetAlertDetails(id)
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			api.RespondError(w, http.StatusNotFound, "Alert not found")
			return
		}
		api.RespondInternalError(w, "AlertHandler", err)
		return
	}
	api.RespondJSON(w, http.StatusOK, alert)
}

// ResolveRequest is the body of a manual resolve call
type ResolveRequest struct {
	OperatorID string `json:"operator_id"`
}

func (h *AlertHandler) handleResolve(w http.ResponseWriter, r *http.Request, id uint) {
	var req ResolveRequest
	if r.ContentLength > 0 {
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.alerts.ResolveAlert(r.Context(), id, req.OperatorID); err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			api.RespondError(w, http.StatusNotFound, "Alert not found")
			return
		}
		api.RespondInternalError(w, "AlertHandler", err)
		return
	}
	api.RespondNoContent(w)
}

func (h *AlertHandler) handleDashboard(w http.ResponseWriter, r *http.Request, view string) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch view {
	case "counts":
		rows, err := h.dashboards.Counts(r.Context())
		if err != nil {
			api.RespondInternalError(w, "AlertHandler", err)
			return
		}
		api.RespondJSON(w, http.StatusOK, rows)

	case "top-offenders":
		limit := queryInt(r, "limit", services.DefaultTopOffendersLimit)
		rows, err := h.dashboards.TopOffenders(r.Context(), limit)
		if err != nil {
			api.RespondInternalError(w, "AlertHandler", err)
			return
		}
		api.RespondJSON(w, http.StatusOK, rows)

	case "auto-closed":
		hours := queryInt(r, "hours", 24)
		rows, err := h.alerts.ListRecentAutoClosed(hours)
		if err != nil {
			api.RespondInternalError(w, "AlertHandler", err)
			return
		}
		api.RespondJSON(w, http.StatusOK, rows)

	default:
		api.RespondError(w, http.StatusNotFound, "Not found")
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
