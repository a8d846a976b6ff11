package service

import (
	"context"
	"errors"
	"time"

	"studio-api/internal/crm"
	"studio-api/internal/domain"
	"studio-api/internal/notifier"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgramInput carries the editable fields of a training program
type ProgramInput struct {
	Name        string     `json:"name" validate:"required,min=2,max=150"`
	Slug        string     `json:"slug" validate:"omitempty,max=150"`
	Description string     `json:"description" validate:"max=5000"`
	PriceCents  int64      `json:"price_cents" validate:"gte=0"`
	Sessions    int        `json:"sessions" validate:"required,gte=1"`
	Capacity    int        `json:"capacity" validate:"required,gte=1"`
	Published   bool       `json:"published"`
	StartsOn    *time.Time `json:"starts_on"`
}

type TrainingService interface {
	ListPrograms(ctx context.Context, includeUnpublished bool) ([]*domain.TrainingProgram, error)
	CreateProgram(ctx context.Context, input ProgramInput) (*domain.TrainingProgram, error)
	Enroll(ctx context.Context, clientID, programID uuid.UUID) (*domain.Enrollment, error)
	RecordSession(ctx context.Context, enrollmentID uuid.UUID) (*domain.Enrollment, error)
	Withdraw(ctx context.Context, actor Actor, enrollmentID uuid.UUID) (*domain.Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, enrollmentID uuid.UUID, status domain.EnrollmentStatus) (*domain.Enrollment, error)
	ListClientEnrollments(ctx context.Context, clientID uuid.UUID) ([]*domain.Enrollment, error)
	ListProgramEnrollments(ctx context.Context, programID uuid.UUID) ([]*domain.Enrollment, error)
}

type trainingService struct {
	repo       repository.TrainingRepository
	users      repository.UserRepository
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewTrainingService(repo repository.TrainingRepository, users repository.UserRepository, dispatcher *Dispatcher, logger *zap.Logger) TrainingService {
	return &trainingService{repo: repo, users: users, dispatcher: dispatcher, logger: logger}
}

func (s *trainingService) ListPrograms(ctx context.Context, includeUnpublished bool) ([]*domain.TrainingProgram, error) {
	return s.repo.ListPrograms(ctx, !includeUnpublished)
}

func (s *trainingService) CreateProgram(ctx context.Context, input ProgramInput) (*domain.TrainingProgram, error) {
	if input.Sessions < 1 || input.Capacity < 1 {
		return nil, businessErrorf("a program needs at least one session and one seat")
	}
	slug := slugify(input.Slug)
	if slug == "" {
		slug = slugify(input.Name)
	}

	now := time.Now()
	program := &domain.TrainingProgram{
		ID:          uuid.New(),
		Name:        input.Name,
		Slug:        slug,
		Description: input.Description,
		PriceCents:  input.PriceCents,
		Sessions:    input.Sessions,
		Capacity:    input.Capacity,
		Published:   input.Published,
		StartsOn:    input.StartsOn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProgram(ctx, program); err != nil {
		if errors.Is(err, repository.ErrProgramAlreadyExists) {
			return nil, businessErrorf("a program with the slug %q already exists", slug)
		}
		return nil, err
	}

	s.logger.Info("Training program created", zap.String("program_id", program.ID.String()), zap.String("slug", slug))
	return program, nil
}

// Enroll registers the client, or waitlists them when every seat is held
func (s *trainingService) Enroll(ctx context.Context, clientID, programID uuid.UUID) (*domain.Enrollment, error) {
	program, err := s.repo.FindProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	if !program.Published {
		return nil, businessErrorf("%s is not open for enrollment", program.Name)
	}

	now := time.Now()
	enrollment := &domain.Enrollment{
		ID:        uuid.New(),
		ClientID:  clientID,
		ProgramID: programID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrAlreadyEnrolled) {
			return nil, businessErrorf("you are already registered for %s", program.Name)
		}
		return nil, err
	}

	s.logger.Info("Client enrolled",
		zap.String("enrollment_id", enrollment.ID.String()),
		zap.String("program_id", programID.String()),
		zap.String("status", string(enrollment.Status)),
	)

	client, err := s.users.FindByID(ctx, clientID)
	if err != nil {
		s.logger.Warn("Skipping enrollment notifications", zap.String("enrollment_id", enrollment.ID.String()), zap.Error(err))
		return enrollment, nil
	}

	ref := enrollment.ID.String()
	s.dispatcher.Email(ctx, "enrollment", ref, notifier.EmailJob{
		Template: notifier.TemplateEnrollmentCreated,
		To:       client.Email,
		Name:     client.FirstName,
		Data: map[string]string{
			"program": program.Name,
			"status":  string(enrollment.Status),
		},
	})
	s.dispatcher.Deal(ctx, "enrollment", ref, crm.DealEvent{
		Kind:       crm.DealEnrollment,
		ClientID:   client.ID.String(),
		Email:      client.Email,
		Name:       client.FullName(),
		Title:      program.Name,
		ValueCents: program.PriceCents,
		Reference:  ref,
	})

	return enrollment, nil
}

func (s *trainingService) RecordSession(ctx context.Context, enrollmentID uuid.UUID) (*domain.Enrollment, error) {
	enrollment, err := s.repo.RecordSession(ctx, enrollmentID)
	if errors.Is(err, repository.ErrEnrollmentNotFound) {
		if _, findErr := s.repo.FindEnrollment(ctx, enrollmentID); findErr == nil {
			return nil, businessErrorf("sessions can only be recorded for active enrollments")
		}
	}
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (s *trainingService) Withdraw(ctx context.Context, actor Actor, enrollmentID uuid.UUID) (*domain.Enrollment, error) {
	enrollment, err := s.repo.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && enrollment.ClientID != actor.ID {
		return nil, repository.ErrEnrollmentNotFound
	}
	if enrollment.Status == domain.EnrollmentCompleted || enrollment.Status == domain.EnrollmentWithdrawn {
		return nil, businessErrorf("a %s enrollment cannot be withdrawn", enrollment.Status)
	}
	return s.UpdateEnrollmentStatus(ctx, enrollmentID, domain.EnrollmentWithdrawn)
}

func (s *trainingService) UpdateEnrollmentStatus(ctx context.Context, enrollmentID uuid.UUID, status domain.EnrollmentStatus) (*domain.Enrollment, error) {
	if !status.Valid() {
		return nil, businessErrorf("unknown enrollment status %q", status)
	}
	if err := s.repo.UpdateEnrollmentStatus(ctx, enrollmentID, status); err != nil {
		if errors.Is(err, repository.ErrAlreadyEnrolled) {
			return nil, businessErrorf("this client already has an active enrollment in the program")
		}
		return nil, err
	}
	s.logger.Info("Enrollment status updated", zap.String("enrollment_id", enrollmentID.String()), zap.String("status", string(status)))
	return s.repo.FindEnrollment(ctx, enrollmentID)
}

func (s *trainingService) ListClientEnrollments(ctx context.Context, clientID uuid.UUID) ([]*domain.Enrollment, error) {
	return s.repo.ListEnrollmentsByClient(ctx, clientID)
}

func (s *trainingService) ListProgramEnrollments(ctx context.Context, programID uuid.UUID) ([]*domain.Enrollment, error) {
	if _, err := s.repo.FindProgram(ctx, programID); err != nil {
		return nil, err
	}
	return s.repo.ListEnrollmentsByProgram(ctx, programID)
}
