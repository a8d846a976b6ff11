package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio-api/internal/domain"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publicReviewLimit = 50

// SubmitReviewInput is a client's review of a visit or a service
type SubmitReviewInput struct {
	BookingID *uuid.UUID `json:"booking_id"`
	ServiceID *uuid.UUID `json:"service_id"`
	Rating    int        `json:"rating" validate:"required,min=1,max=5"`
	Title     string     `json:"title" validate:"max=150"`
	Body      string     `json:"body" validate:"required,min=3,max=4000"`
}

// ModerateReviewInput is an admin moderation decision
type ModerateReviewInput struct {
	Status     domain.ReviewStatus `json:"status" validate:"required,oneof=pending approved featured hidden"`
	AdminReply *string             `json:"admin_reply" validate:"omitempty,max=2000"`
}

type ReviewService interface {
	SubmitReview(ctx context.Context, clientID uuid.UUID, input SubmitReviewInput) (*domain.Review, error)
	ListPublicReviews(ctx context.Context) ([]*domain.Review, error)
	ListReviews(ctx context.Context, status *domain.ReviewStatus) ([]*domain.Review, error)
	ModerateReview(ctx context.Context, id uuid.UUID, input ModerateReviewInput) (*domain.Review, error)
	Summary(ctx context.Context) (*domain.ReviewSummary, error)
}

type reviewService struct {
	reviews  repository.ReviewRepository
	bookings repository.BookingRepository
	services repository.ServiceRepository
	loyalty  LoyaltyService
	logger   *zap.Logger
}

func NewReviewService(reviews repository.ReviewRepository, bookings repository.BookingRepository, services repository.ServiceRepository, loyalty LoyaltyService, logger *zap.Logger) ReviewService {
	return &reviewService{reviews: reviews, bookings: bookings, services: services, loyalty: loyalty, logger: logger}
}

func (s *reviewService) SubmitReview(ctx context.Context, clientID uuid.UUID, input SubmitReviewInput) (*domain.Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, businessErrorf("rating must be between 1 and 5")
	}

	review := &domain.Review{
		ID:        uuid.New(),
		ClientID:  clientID,
		BookingID: input.BookingID,
		ServiceID: input.ServiceID,
		Rating:    input.Rating,
		Title:     input.Title,
		Body:      input.Body,
		Status:    domain.ReviewPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if input.BookingID != nil {
		booking, err := s.bookings.FindByID(ctx, *input.BookingID)
		if err != nil && !errors.Is(err, repository.ErrBookingNotFound) {
			return nil, err
		}
		if booking == nil || booking.ClientID != clientID {
			return nil, businessErrorf("you can only review your own appointments")
		}
		if booking.Status != domain.BookingCompleted {
			return nil, businessErrorf("you can review an appointment once it is completed")
		}
		serviceID := booking.ServiceID
		review.ServiceID = &serviceID
	} else if input.ServiceID != nil {
		if _, err := s.services.FindByID(ctx, *input.ServiceID); err != nil {
			if errors.Is(err, repository.ErrServiceNotFound) {
				return nil, businessErrorf("this service does not exist")
			}
			return nil, err
		}
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrBookingAlreadyRated) {
			return nil, businessErrorf("you have already reviewed this appointment")
		}
		return nil, err
	}

	s.logger.Info("Review submitted", zap.String("review_id", review.ID.String()), zap.Int("rating", review.Rating))
	return review, nil
}

func (s *reviewService) ListPublicReviews(ctx context.Context) ([]*domain.Review, error) {
	return s.reviews.ListPublic(ctx, publicReviewLimit)
}

func (s *reviewService) ListReviews(ctx context.Context, status *domain.ReviewStatus) ([]*domain.Review, error) {
	if status != nil && !status.Valid() {
		return nil, businessErrorf("unknown review status %q", *status)
	}
	return s.reviews.ListByStatus(ctx, status)
}

// ModerateReview changes visibility and the studio reply. The first time a
// review is published its author earns the review bonus.
func (s *reviewService) ModerateReview(ctx context.Context, id uuid.UUID, input ModerateReviewInput) (*domain.Review, error) {
	if !input.Status.Valid() {
		return nil, businessErrorf("unknown review status %q", input.Status)
	}

	review, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	review.Status = input.Status
	if input.AdminReply != nil {
		review.AdminReply = *input.AdminReply
	}

	// The bonus is recorded before the flag so a failed award is retried on
	// the next moderation; Award itself is idempotent per review.
	if review.Status.Public() && !review.BonusAwarded {
		if _, err := s.loyalty.Award(ctx, review.ClientID, domain.ReviewBonusPoints, domain.LoyaltyReviewApproved, review.ID.String(), "Thanks for your review"); err != nil {
			return nil, fmt.Errorf("failed to award review bonus: %w", err)
		}
		review.BonusAwarded = true
	}
	review.UpdatedAt = time.Now()

	if err := s.reviews.UpdateModeration(ctx, review); err != nil {
		return nil, err
	}

	s.logger.Info("Review moderated", zap.String("review_id", id.String()), zap.String("status", string(review.Status)))
	return review, nil
}

func (s *reviewService) Summary(ctx context.Context) (*domain.ReviewSummary, error) {
	return s.reviews.Summary(ctx)
}
