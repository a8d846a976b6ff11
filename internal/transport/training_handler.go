package transport

import (
	"net/http"

	"studio-api/internal/domain"
	"studio-api/internal/middleware"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type enrollmentStatusRequest struct {
	Status domain.EnrollmentStatus `json:"status" validate:"required,oneof=waitlisted enrolled in_progress completed withdrawn"`
}

type TrainingHandler struct {
	training service.TrainingService
	logger   *zap.Logger
}

func NewTrainingHandler(training service.TrainingService, logger *zap.Logger) *TrainingHandler {
	return &TrainingHandler{training: training, logger: logger}
}

func (h *TrainingHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Get("/api/training/programs", h.ListPrograms)

	r.Group(func(r chi.Router) {
		r.Use(guards.Auth)
		r.Post("/api/training/programs/{id}/enroll", h.Enroll)
		r.Get("/api/training/enrollments/mine", h.ListMine)
		r.Post("/api/training/enrollments/{id}/withdraw", h.Withdraw)

		r.Group(func(r chi.Router) {
			r.Use(guards.Staff)
			r.Post("/api/staff/enrollments/{id}/sessions", h.RecordSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(guards.Admin)
			r.Get("/api/admin/programs", h.ListAllPrograms)
			r.Post("/api/admin/programs", h.CreateProgram)
			r.Get("/api/admin/enrollments", h.ListProgramEnrollments)
			r.Patch("/api/admin/enrollments/{id}/status", h.UpdateEnrollmentStatus)
		})
	})
}

func (h *TrainingHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.training.ListPrograms(r.Context(), false)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list programs")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, programs)
}

func (h *TrainingHandler) ListAllPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.training.ListPrograms(r.Context(), true)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list programs")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, programs)
}

func (h *TrainingHandler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var input service.ProgramInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	program, err := h.training.CreateProgram(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to create program")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, program)
}

func (h *TrainingHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	programID, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	enrollment, err := h.training.Enroll(r.Context(), actor.ID, programID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to enroll")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, enrollment)
}

func (h *TrainingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	enrollments, err := h.training.ListClientEnrollments(r.Context(), actor.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list enrollments")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, enrollments)
}

func (h *TrainingHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	enrollment, err := h.training.Withdraw(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to withdraw")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, enrollment)
}

func (h *TrainingHandler) RecordSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	enrollment, err := h.training.RecordSession(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to record session")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, enrollment)
}

// ListProgramEnrollments answers GET /api/admin/enrollments?program_id=
func (h *TrainingHandler) ListProgramEnrollments(w http.ResponseWriter, r *http.Request) {
	programID, err := queryUUID(r, "program_id")
	if err != nil || programID == nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "program_id is required")
		return
	}

	enrollments, err := h.training.ListProgramEnrollments(r.Context(), *programID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list enrollments")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, enrollments)
}

func (h *TrainingHandler) UpdateEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req enrollmentStatusRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	enrollment, err := h.training.UpdateEnrollmentStatus(r.Context(), id, req.Status)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update enrollment")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, enrollment)
}
