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
	ErrReviewNotFound      = errors.New("review not found")
	ErrBookingAlreadyRated = errors.New("this booking already has a review")
)

// ReviewRepository defines data access for client testimonials
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	UpdateModeration(ctx context.Context, review *domain.Review) error
	ListPublic(ctx context.Context, limit int) ([]*domain.Review, error)
	ListByStatus(ctx context.Context, status *domain.ReviewStatus) ([]*domain.Review, error)
	Summary(ctx context.Context) (*domain.ReviewSummary, error)
}

type reviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

const reviewColumns = `r.id, r.client_id, r.booking_id, r.service_id, r.rating, r.title, r.body, r.status,
	r.admin_reply, r.bonus_awarded, TRIM(u.first_name || ' ' || u.last_name), r.created_at, r.updated_at`

const reviewFrom = ` FROM reviews r JOIN users u ON u.id = r.client_id `

func scanReview(row interface{ Scan(...any) error }, rv *domain.Review) error {
	var bookingID, serviceID uuid.NullUUID
	err := row.Scan(
		&rv.ID,
		&rv.ClientID,
		&bookingID,
		&serviceID,
		&rv.Rating,
		&rv.Title,
		&rv.Body,
		&rv.Status,
		&rv.AdminReply,
		&rv.BonusAwarded,
		&rv.ClientName,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if bookingID.Valid {
		id := bookingID.UUID
		rv.BookingID = &id
	}
	if serviceID.Valid {
		id := serviceID.UUID
		rv.ServiceID = &id
	}
	return nil
}

func (r *reviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	query := `
		INSERT INTO reviews (id, client_id, booking_id, service_id, rating, title, body, status,
		                     admin_reply, bonus_awarded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		rv.ID,
		rv.ClientID,
		rv.BookingID,
		rv.ServiceID,
		rv.Rating,
		rv.Title,
		rv.Body,
		rv.Status,
		rv.AdminReply,
		rv.BonusAwarded,
		rv.CreatedAt,
		rv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_reviews_booking") {
			return ErrBookingAlreadyRated
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

func (r *reviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	rv := &domain.Review{}
	err := scanReview(r.db.QueryRowContext(ctx, `SELECT `+reviewColumns+reviewFrom+`WHERE r.id = $1`, id), rv)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to find review by ID: %w", err)
	}
	return rv, nil
}

// UpdateModeration persists status, reply and the bonus flag
func (r *reviewRepository) UpdateModeration(ctx context.Context, rv *domain.Review) error {
	query := `
		UPDATE reviews
		SET status = $2, admin_reply = $3, bonus_awarded = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, rv.ID, rv.Status, rv.AdminReply, rv.BonusAwarded, rv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to moderate review: %w", err)
	}
	return expectRows(result, ErrReviewNotFound)
}

// ListPublic returns approved and featured reviews, featured first
func (r *reviewRepository) ListPublic(ctx context.Context, limit int) ([]*domain.Review, error) {
	_, limit = normalizePage(1, limit)
	query := `SELECT ` + reviewColumns + reviewFrom + `
		WHERE r.status IN ('approved', 'featured')
		ORDER BY (r.status = 'featured') DESC, r.created_at DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list public reviews: %w", err)
	}
	defer rows.Close()
	return collectReviews(rows)
}

func (r *reviewRepository) ListByStatus(ctx context.Context, status *domain.ReviewStatus) ([]*domain.Review, error) {
	query := `SELECT ` + reviewColumns + reviewFrom + `
		WHERE ($1::text IS NULL OR r.status = $1)
		ORDER BY r.created_at DESC`
	var arg *string
	if status != nil {
		s := string(*status)
		arg = &s
	}
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()
	return collectReviews(rows)
}

func (r *reviewRepository) Summary(ctx context.Context) (*domain.ReviewSummary, error) {
	summary := &domain.ReviewSummary{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*)
		FROM reviews
		WHERE status IN ('approved', 'featured')
	`).Scan(&summary.AverageRating, &summary.TotalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize reviews: %w", err)
	}
	return summary, nil
}

func collectReviews(rows *sql.Rows) ([]*domain.Review, error) {
	reviews := []*domain.Review{}
	for rows.Next() {
		rv := &domain.Review{}
		if err := scanReview(rows, rv); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}
