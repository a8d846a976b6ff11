package transport

import (
	"net/http"

	"studio-api/internal/middleware"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type redeemRequest struct {
	Points      int    `json:"points" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=200"`
}

type adjustRequest struct {
	ClientID    uuid.UUID `json:"client_id" validate:"required"`
	Points      int       `json:"points" validate:"required"`
	Description string    `json:"description" validate:"required,max=200"`
}

// BalanceResponse is the loyalty balance after a mutation
type BalanceResponse struct {
	Balance int `json:"balance"`
}

type LoyaltyHandler struct {
	loyalty service.LoyaltyService
	logger  *zap.Logger
}

func NewLoyaltyHandler(loyalty service.LoyaltyService, logger *zap.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{loyalty: loyalty, logger: logger}
}

func (h *LoyaltyHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Group(func(r chi.Router) {
		r.Use(guards.Auth)
		r.Get("/api/loyalty", h.Summary)
		r.Post("/api/loyalty/redeem", h.Redeem)

		r.Group(func(r chi.Router) {
			r.Use(guards.Admin)
			r.Post("/api/admin/loyalty/adjust", h.Adjust)
		})
	})
}

func (h *LoyaltyHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	summary, err := h.loyalty.Summary(r.Context(), actor.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to load loyalty summary")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *LoyaltyHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	balance, err := h.loyalty.Redeem(r.Context(), actor.ID, req.Points, req.Description)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to redeem points")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}

// Adjust applies a signed manual correction to a client's balance
func (h *LoyaltyHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	balance, err := h.loyalty.Adjust(r.Context(), req.ClientID, req.Points, req.Description)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to adjust points")
		return
	}

	h.logger.Info("Loyalty balance adjusted",
		zap.String("client_id", req.ClientID.String()),
		zap.String("admin_id", actor.ID.String()),
		zap.Int("points", req.Points),
	)
	middleware.RespondWithJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}
