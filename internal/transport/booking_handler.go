package transport

import (
	"net/http"
	"strconv"
	"time"

	"studio-api/internal/checkin"
	"studio-api/internal/domain"
	"studio-api/internal/middleware"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateBookingRequest is the client booking form
type CreateBookingRequest struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
	StaffID   uuid.UUID `json:"staff_id" validate:"required"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	Notes     string    `json:"notes" validate:"max=1000"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type bookingStatusRequest struct {
	Status domain.BookingStatus `json:"status" validate:"required,oneof=pending confirmed in_progress completed cancelled no_show"`
}

type checkInRequest struct {
	Token string `json:"token" validate:"required"`
}

// BookingHandler exposes the booking lifecycle to clients, staff and admins
type BookingHandler struct {
	bookings service.BookingService
	location *time.Location
	logger   *zap.Logger
}

func NewBookingHandler(bookings service.BookingService, location *time.Location, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, location: location, logger: logger}
}

func (h *BookingHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Group(func(r chi.Router) {
		r.Use(guards.Auth)
		r.Post("/api/bookings", h.CreateBooking)
		r.Get("/api/bookings/mine", h.ListMine)
		r.Get("/api/bookings/{id}", h.GetBooking)
		r.Post("/api/bookings/{id}/cancel", h.CancelBooking)
		r.Get("/api/bookings/{id}/qr", h.CheckInQR)

		r.Group(func(r chi.Router) {
			r.Use(guards.Staff)
			r.Get("/api/staff/schedule", h.StaffSchedule)
			r.Patch("/api/staff/bookings/{id}/status", h.UpdateStatus)
			r.Post("/api/staff/checkin", h.CheckIn)
		})

		r.Group(func(r chi.Router) {
			r.Use(guards.Admin)
			r.Get("/api/admin/bookings", h.ListBookings)
		})
	})
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req CreateBookingRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	booking, err := h.bookings.CreateBooking(r.Context(), actor.ID, service.CreateBookingInput{
		ServiceID: req.ServiceID,
		StaffID:   req.StaffID,
		StartsAt:  req.StartsAt,
		Notes:     req.Notes,
	})
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to create booking")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, booking)
}

// ListMine returns the caller's bookings; ?upcoming=true hides past ones
func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	upcoming, _ := strconv.ParseBool(r.URL.Query().Get("upcoming"))

	bookings, err := h.bookings.ListClientBookings(r.Context(), actor.ID, upcoming)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list bookings")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to get booking")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req cancelBookingRequest
	if r.ContentLength != 0 && !decodeRequest(w, r, h.logger, &req) {
		return
	}

	booking, err := h.bookings.CancelBooking(r.Context(), actor, id, req.Reason)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to cancel booking")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, booking)
}

// CheckInQR renders the signed check-in link of a booking as a PNG
func (h *BookingHandler) CheckInQR(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	link, err := h.bookings.CheckInURL(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to create check-in code")
		return
	}

	png, err := checkin.QR(link)
	if err != nil {
		h.logger.Error("Failed to render QR code", zap.String("booking_id", id.String()), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create check-in code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// StaffSchedule lists the caller's bookings between from and to (inclusive
// dates, studio time). Defaults to the next seven days.
func (h *BookingHandler) StaffSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	from, hasFrom, err := queryDate(r, "from", h.location)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "from must be formatted as YYYY-MM-DD")
		return
	}
	if !hasFrom {
		y, m, d := time.Now().In(h.location).Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, h.location)
	}

	to, hasTo, err := queryDate(r, "to", h.location)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "to must be formatted as YYYY-MM-DD")
		return
	}
	if hasTo {
		to = to.AddDate(0, 0, 1)
	} else {
		to = from.AddDate(0, 0, 7)
	}

	staffID := actor.ID
	// Admins may look at another artist's book
	if actor.IsAdmin() {
		if other, err := queryUUID(r, "staff_id"); err == nil && other != nil {
			staffID = *other
		}
	}

	bookings, err := h.bookings.ListStaffSchedule(r.Context(), staffID, from, to)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load schedule")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req bookingStatusRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	booking, err := h.bookings.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update booking")
		return
	}

	h.logger.Info("Booking status updated",
		zap.String("booking_id", id.String()),
		zap.String("status", string(booking.Status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	booking, err := h.bookings.CheckIn(r.Context(), req.Token)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to check in")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	filter := domain.BookingFilter{Page: page, PageSize: pageSize}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.BookingStatus(raw)
		if !status.Valid() {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = &status
	}

	var err error
	if filter.StaffID, err = queryUUID(r, "staff_id"); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid staff_id")
		return
	}
	if filter.ClientID, err = queryUUID(r, "client_id"); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid client_id")
		return
	}
	if from, ok, err := queryDate(r, "from", h.location); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "from must be formatted as YYYY-MM-DD")
		return
	} else if ok {
		filter.From = &from
	}
	if to, ok, err := queryDate(r, "to", h.location); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "to must be formatted as YYYY-MM-DD")
		return
	} else if ok {
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}

	bookings, total, err := h.bookings.ListBookings(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list bookings")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PageResponse{
		Items:    bookings,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}
