package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrServiceAlreadyExists = errors.New("service with this slug already exists")
)

// ServiceRepository defines data access for the bookable service catalog
type ServiceRepository interface {
	Create(ctx context.Context, svc *domain.Service) error
	Update(ctx context.Context, svc *domain.Service) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Service, error)
	List(ctx context.Context, category string, includeInactive bool) ([]*domain.Service, error)
}

type serviceRepository struct {
	db *sql.DB
}

func NewServiceRepository(db *sql.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

const serviceColumns = `id, name, slug, description, category, price_cents, deposit_cents,
	duration_minutes, active, sort_order, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }, svc *domain.Service) error {
	return row.Scan(
		&svc.ID,
		&svc.Name,
		&svc.Slug,
		&svc.Description,
		&svc.Category,
		&svc.PriceCents,
		&svc.DepositCents,
		&svc.DurationMinutes,
		&svc.Active,
		&svc.SortOrder,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	)
}

func (r *serviceRepository) Create(ctx context.Context, svc *domain.Service) error {
	query := `
		INSERT INTO services (` + serviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		svc.ID,
		svc.Name,
		svc.Slug,
		svc.Description,
		svc.Category,
		svc.PriceCents,
		svc.DepositCents,
		svc.DurationMinutes,
		svc.Active,
		svc.SortOrder,
		svc.CreatedAt,
		svc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "services_slug_key") {
			return ErrServiceAlreadyExists
		}
		return fmt.Errorf("failed to create service: %w", err)
	}

	return nil
}

func (r *serviceRepository) Update(ctx context.Context, svc *domain.Service) error {
	query := `
		UPDATE services
		SET name = $2, slug = $3, description = $4, category = $5, price_cents = $6,
		    deposit_cents = $7, duration_minutes = $8, active = $9, sort_order = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		svc.ID,
		svc.Name,
		svc.Slug,
		svc.Description,
		svc.Category,
		svc.PriceCents,
		svc.DepositCents,
		svc.DurationMinutes,
		svc.Active,
		svc.SortOrder,
		svc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "services_slug_key") {
			return ErrServiceAlreadyExists
		}
		return fmt.Errorf("failed to update service: %w", err)
	}

	return expectRows(result, ErrServiceNotFound)
}

func (r *serviceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE services SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to toggle service: %w", err)
	}

	return expectRows(result, ErrServiceNotFound)
}

func (r *serviceRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	svc := &domain.Service{}
	err := scanService(r.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id), svc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("failed to find service by ID: %w", err)
	}

	return svc, nil
}

// List returns services ordered for display, optionally restricted to one category
func (r *serviceRepository) List(ctx context.Context, category string, includeInactive bool) ([]*domain.Service, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM services
		WHERE ($1 = '' OR category = $1)
		  AND ($2 OR active)
		ORDER BY category ASC, sort_order ASC, name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, category, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	services := []*domain.Service{}
	for rows.Next() {
		svc := &domain.Service{}
		if err := scanService(rows, svc); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, svc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating services: %w", err)
	}

	return services, nil
}
