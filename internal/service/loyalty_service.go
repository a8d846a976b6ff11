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

const recentLoyaltyLimit = 20

// LoyaltyService manages the points ledger
type LoyaltyService interface {
	Balance(ctx context.Context, clientID uuid.UUID) (int, error)
	Summary(ctx context.Context, clientID uuid.UUID) (*domain.LoyaltySummary, error)
	// Award credits points once per (client, reason, reference); it reports
	// whether a new ledger row was written.
	Award(ctx context.Context, clientID uuid.UUID, points int, reason domain.LoyaltyReason, referenceID, description string) (bool, error)
	Redeem(ctx context.Context, clientID uuid.UUID, points int, description string) (int, error)
	Adjust(ctx context.Context, clientID uuid.UUID, points int, description string) (int, error)
}

type loyaltyService struct {
	repo   repository.LoyaltyRepository
	logger *zap.Logger
}

func NewLoyaltyService(repo repository.LoyaltyRepository, logger *zap.Logger) LoyaltyService {
	return &loyaltyService{repo: repo, logger: logger}
}

func (s *loyaltyService) Balance(ctx context.Context, clientID uuid.UUID) (int, error) {
	return s.repo.Balance(ctx, clientID)
}

func (s *loyaltyService) Summary(ctx context.Context, clientID uuid.UUID) (*domain.LoyaltySummary, error) {
	balance, err := s.repo.Balance(ctx, clientID)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.Recent(ctx, clientID, recentLoyaltyLimit)
	if err != nil {
		return nil, err
	}

	tier, toNext := domain.GetLoyaltyTier(balance)
	return &domain.LoyaltySummary{
		Balance:      balance,
		Tier:         tier,
		PointsToNext: toNext,
		Recent:       recent,
	}, nil
}

func (s *loyaltyService) Award(ctx context.Context, clientID uuid.UUID, points int, reason domain.LoyaltyReason, referenceID, description string) (bool, error) {
	if points <= 0 {
		return false, nil
	}

	err := s.repo.Insert(ctx, &domain.LoyaltyTransaction{
		ID:          uuid.New(),
		ClientID:    clientID,
		Points:      points,
		Reason:      reason,
		ReferenceID: referenceID,
		Description: description,
		CreatedAt:   time.Now(),
	})
	if errors.Is(err, repository.ErrAlreadyAwarded) {
		s.logger.Debug("Loyalty award already recorded",
			zap.String("client_id", clientID.String()),
			zap.String("reason", string(reason)),
			zap.String("reference_id", referenceID),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to award points: %w", err)
	}

	s.logger.Info("Loyalty points awarded",
		zap.String("client_id", clientID.String()),
		zap.String("reason", string(reason)),
		zap.Int("points", points),
	)
	return true, nil
}

func (s *loyaltyService) Redeem(ctx context.Context, clientID uuid.UUID, points int, description string) (int, error) {
	if points <= 0 {
		return 0, businessErrorf("points to redeem must be positive")
	}
	return s.debit(ctx, clientID, -points, domain.LoyaltyRedemption, description)
}

// Adjust applies a signed manual correction; debits obey the same
// no-overdraft rule as redemptions.
func (s *loyaltyService) Adjust(ctx context.Context, clientID uuid.UUID, points int, description string) (int, error) {
	if points == 0 {
		return 0, businessErrorf("adjustment cannot be zero")
	}
	if points < 0 {
		return s.debit(ctx, clientID, points, domain.LoyaltyAdjustment, description)
	}

	err := s.repo.Insert(ctx, &domain.LoyaltyTransaction{
		ID:          uuid.New(),
		ClientID:    clientID,
		Points:      points,
		Reason:      domain.LoyaltyAdjustment,
		Description: description,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}
	return s.repo.Balance(ctx, clientID)
}

func (s *loyaltyService) debit(ctx context.Context, clientID uuid.UUID, points int, reason domain.LoyaltyReason, description string) (int, error) {
	err := s.repo.Redeem(ctx, &domain.LoyaltyTransaction{
		ID:          uuid.New(),
		ClientID:    clientID,
		Points:      points,
		Reason:      reason,
		Description: description,
		CreatedAt:   time.Now(),
	})
	if errors.Is(err, repository.ErrInsufficientPoints) {
		return 0, businessErrorf("not enough points: %d requested", -points)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to redeem points: %w", err)
	}
	return s.repo.Balance(ctx, clientID)
}
