package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/materialdesk/apiserver/internal/services"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

func DashboardRouter(r chi.Router, dashboardService *services.DashboardService) {
	handler := NewDashboardHandler(dashboardService)
	r.Get("/stats", handler.Stats)
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err, "dashboard", "failed to fetch dashboard stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
