package transport

import (
	"net/http"

	"studio-api/internal/domain"
	"studio-api/internal/middleware"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ReviewHandler struct {
	reviews service.ReviewService
	logger  *zap.Logger
}

func NewReviewHandler(reviews service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

func (h *ReviewHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Get("/api/reviews", h.ListPublic)
	r.Get("/api/reviews/summary", h.Summary)

	r.Group(func(r chi.Router) {
		r.Use(guards.Auth)
		r.Post("/api/reviews", h.Submit)

		r.Group(func(r chi.Router) {
			r.Use(guards.Admin)
			r.Get("/api/admin/reviews", h.ListForModeration)
			r.Patch("/api/admin/reviews/{id}", h.Moderate)
		})
	})
}

func (h *ReviewHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListPublicReviews(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list reviews")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, reviews)
}

func (h *ReviewHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reviews.Summary(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to summarize reviews")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var input service.SubmitReviewInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	review, err := h.reviews.SubmitReview(r.Context(), actor.ID, input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to submit review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, review)
}

// ListForModeration lists reviews, optionally narrowed by ?status=
func (h *ReviewHandler) ListForModeration(w http.ResponseWriter, r *http.Request) {
	var status *domain.ReviewStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.ReviewStatus(raw)
		if !s.Valid() {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &s
	}

	reviews, err := h.reviews.ListReviews(r.Context(), status)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list reviews")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, reviews)
}

func (h *ReviewHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var input service.ModerateReviewInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	review, err := h.reviews.ModerateReview(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to moderate review")
		return
	}

	h.logger.Info("Review moderated", zap.String("review_id", id.String()), zap.String("status", string(review.Status)))
	middleware.RespondWithJSON(w, http.StatusOK, review)
}
