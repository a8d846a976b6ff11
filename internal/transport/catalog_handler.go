package transport

import (
	"net/http"
	"time"

	"studio-api/internal/middleware"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SlotsResponse lists the free start times of one day
type SlotsResponse struct {
	Date  string      `json:"date"`
	Slots []time.Time `json:"slots"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// CatalogHandler serves the public service menu, slot lookup and the admin
// catalog editor
type CatalogHandler struct {
	catalog  service.CatalogService
	bookings service.BookingService
	location *time.Location
	logger   *zap.Logger
}

func NewCatalogHandler(catalog service.CatalogService, bookings service.BookingService, location *time.Location, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, bookings: bookings, location: location, logger: logger}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Get("/api/services", h.ListServices)
	r.Get("/api/services/{id}", h.GetService)
	r.Get("/api/services/{id}/slots", h.AvailableSlots)

	r.Group(func(r chi.Router) {
		r.Use(guards.Auth, guards.Admin)
		r.Get("/api/admin/services", h.ListAllServices)
		r.Post("/api/admin/services", h.CreateService)
		r.Put("/api/admin/services/{id}", h.UpdateService)
		r.Patch("/api/admin/services/{id}/active", h.SetServiceActive)
	})
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.ListServices(r.Context(), r.URL.Query().Get("category"), false)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list services")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, services)
}

func (h *CatalogHandler) ListAllServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.ListServices(r.Context(), r.URL.Query().Get("category"), true)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list services")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, services)
}

func (h *CatalogHandler) GetService(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	svc, err := h.catalog.GetService(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to get service")
		return
	}
	// Inactive services are hidden from the public menu
	if !svc.Active {
		middleware.RespondWithError(w, http.StatusNotFound, "service not found")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, svc)
}

// AvailableSlots answers GET /api/services/{id}/slots?staff_id=&date=YYYY-MM-DD
func (h *CatalogHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	staffID, err := queryUUID(r, "staff_id")
	if err != nil || staffID == nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "staff_id is required")
		return
	}

	date, present, err := queryDate(r, "date", h.location)
	if err != nil || !present {
		middleware.RespondWithError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	slots, err := h.bookings.AvailableSlots(r.Context(), serviceID, *staffID, date)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to compute available slots")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, SlotsResponse{Date: date.Format(dateLayout), Slots: slots})
}

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var input service.ServiceInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	svc, err := h.catalog.CreateService(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to create service")
		return
	}

	h.logger.Info("Service created", zap.String("service_id", svc.ID.String()), zap.String("slug", svc.Slug))
	middleware.RespondWithJSON(w, http.StatusCreated, svc)
}

func (h *CatalogHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var input service.ServiceInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	svc, err := h.catalog.UpdateService(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update service")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, svc)
}

func (h *CatalogHandler) SetServiceActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	if err := h.catalog.SetServiceActive(r.Context(), id, *req.Active); err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update service")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"active": *req.Active})
}
