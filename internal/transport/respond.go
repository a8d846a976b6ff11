package transport

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"studio-api/internal/middleware"
	"studio-api/internal/payment"
	"studio-api/internal/repository"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Guards are the middleware chains route groups are mounted behind
type Guards struct {
	Auth      func(http.Handler) http.Handler
	Staff     func(http.Handler) http.Handler
	Admin     func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
}

var notFoundErrors = []error{
	repository.ErrUserNotFound,
	repository.ErrServiceNotFound,
	repository.ErrBookingNotFound,
	repository.ErrReviewNotFound,
	repository.ErrProgramNotFound,
	repository.ErrEnrollmentNotFound,
	repository.ErrProductNotFound,
	repository.ErrOrderNotFound,
}

var conflictErrors = []error{
	repository.ErrUserAlreadyExists,
	repository.ErrServiceAlreadyExists,
	repository.ErrProductAlreadyExists,
	repository.ErrProgramAlreadyExists,
	repository.ErrSlotTaken,
	repository.ErrAlreadyEnrolled,
	repository.ErrBookingAlreadyRated,
	repository.ErrAlreadyAwarded,
}

var unauthorizedErrors = []error{
	service.ErrInvalidCredentials,
	service.ErrInvalidToken,
	service.ErrTokenExpired,
	repository.ErrRefreshTokenNotFound,
	repository.ErrRefreshTokenRevoked,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondWithServiceError maps a service error onto the HTTP error contract.
// Unknown errors are logged and reported with the fallback message.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	if be, ok := service.AsBusinessError(err); ok {
		logger.Debug("Request rejected by business rule", zap.String("reason", be.Message))
		middleware.RespondWithFailure(w, be.Message)
		return
	}

	switch {
	case isAny(err, notFoundErrors):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case isAny(err, conflictErrors):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case isAny(err, unauthorizedErrors):
		middleware.RespondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		middleware.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, payment.ErrInvalidWebhook):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeRequest decodes and validates a JSON body, writing the 400 itself on
// failure
func decodeRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v interface{}) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// actorFrom reads the authenticated caller placed on the context by AuthMiddleware
func actorFrom(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return service.Actor{}, false
	}
	role, _ := middleware.GetUserRole(r.Context())
	return service.Actor{ID: userID, Role: role}, true
}

func urlID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

// pageParams reads ?page and ?page_size, clamped the way repositories clamp them
func pageParams(r *http.Request) (int, int) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func queryDate(r *http.Request, name string, loc *time.Location) (time.Time, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	return t, true, err
}

// PageResponse wraps a paginated listing
type PageResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
