package transport

import (
	"net/http"

	"studio-api/internal/middleware"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler serves the dashboard overview, client CRM and sync log
type AdminHandler struct {
	dashboard service.DashboardService
	logger    *zap.Logger
}

func NewAdminHandler(dashboard service.DashboardService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{dashboard: dashboard, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Group(func(r chi.Router) {
		r.Use(guards.Auth, guards.Admin)
		r.Get("/api/admin/stats", h.Stats)
		r.Get("/api/admin/clients", h.ListClients)
		r.Patch("/api/admin/clients/{id}", h.UpdateClientNotes)
		r.Get("/api/admin/sync-logs", h.SyncLogs)
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load dashboard stats")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	clients, total, err := h.dashboard.ListClients(r.Context(), r.URL.Query().Get("search"), page, pageSize)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list clients")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PageResponse{
		Items:    clients,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *AdminHandler) UpdateClientNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var input service.ClientNotesInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	client, err := h.dashboard.UpdateClientNotes(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update client")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, client)
}

// SyncLogs lists recent integration outcomes, optionally for one ?provider=
func (h *AdminHandler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.dashboard.RecentSyncLogs(r.Context(), r.URL.Query().Get("provider"), queryInt(r, "limit", 50))
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load sync logs")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, logs)
}
