package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio-api/internal/domain"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceInput carries the editable fields of a bookable service
type ServiceInput struct {
	Name            string `json:"name" validate:"required,min=2,max=150"`
	Slug            string `json:"slug" validate:"omitempty,max=150"`
	Description     string `json:"description" validate:"max=5000"`
	Category        string `json:"category" validate:"required,max=50"`
	PriceCents      int64  `json:"price_cents" validate:"gte=0"`
	DepositCents    int64  `json:"deposit_cents" validate:"gte=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
	Active          bool   `json:"active"`
	SortOrder       int    `json:"sort_order"`
}

// CatalogService manages the menu of bookable services
type CatalogService interface {
	ListServices(ctx context.Context, category string, includeInactive bool) ([]*domain.Service, error)
	GetService(ctx context.Context, id uuid.UUID) (*domain.Service, error)
	CreateService(ctx context.Context, input ServiceInput) (*domain.Service, error)
	UpdateService(ctx context.Context, id uuid.UUID, input ServiceInput) (*domain.Service, error)
	SetServiceActive(ctx context.Context, id uuid.UUID, active bool) error
}

type catalogService struct {
	repo   repository.ServiceRepository
	logger *zap.Logger
}

func NewCatalogService(repo repository.ServiceRepository, logger *zap.Logger) CatalogService {
	return &catalogService{repo: repo, logger: logger}
}

func validateServiceInput(input ServiceInput) error {
	if input.DurationMinutes <= 0 || input.DurationMinutes%5 != 0 {
		return businessErrorf("duration must be a positive multiple of 5 minutes")
	}
	if input.PriceCents < 0 {
		return businessErrorf("price cannot be negative")
	}
	if input.DepositCents > input.PriceCents {
		return businessErrorf("deposit cannot exceed the price")
	}
	return nil
}

func (s *catalogService) ListServices(ctx context.Context, category string, includeInactive bool) ([]*domain.Service, error) {
	services, err := s.repo.List(ctx, strings.TrimSpace(category), includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (s *catalogService) GetService(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *catalogService) CreateService(ctx context.Context, input ServiceInput) (*domain.Service, error) {
	if err := validateServiceInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	svc := &domain.Service{ID: uuid.New(), CreatedAt: now}
	applyServiceInput(svc, input, now)

	if err := s.repo.Create(ctx, svc); err != nil {
		if errors.Is(err, repository.ErrServiceAlreadyExists) {
			return nil, businessErrorf("a service with slug %q already exists", svc.Slug)
		}
		return nil, err
	}

	s.logger.Info("Service created", zap.String("service_id", svc.ID.String()), zap.String("slug", svc.Slug))
	return svc, nil
}

func (s *catalogService) UpdateService(ctx context.Context, id uuid.UUID, input ServiceInput) (*domain.Service, error) {
	if err := validateServiceInput(input); err != nil {
		return nil, err
	}

	svc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyServiceInput(svc, input, time.Now())

	if err := s.repo.Update(ctx, svc); err != nil {
		if errors.Is(err, repository.ErrServiceAlreadyExists) {
			return nil, businessErrorf("a service with slug %q already exists", svc.Slug)
		}
		return nil, err
	}
	return svc, nil
}

func (s *catalogService) SetServiceActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

func applyServiceInput(svc *domain.Service, input ServiceInput, now time.Time) {
	svc.Name = strings.TrimSpace(input.Name)
	svc.Slug = slugify(input.Slug)
	if svc.Slug == "" {
		svc.Slug = slugify(input.Name)
	}
	svc.Description = input.Description
	svc.Category = strings.ToLower(strings.TrimSpace(input.Category))
	svc.PriceCents = input.PriceCents
	svc.DepositCents = input.DepositCents
	svc.DurationMinutes = input.DurationMinutes
	svc.Active = input.Active
	svc.SortOrder = input.SortOrder
	svc.UpdatedAt = now
}
