package repository

import (
	"context"
	"testing"
	"time"

	"studio-api/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerEntry(clientID uuid.UUID, points int, reason domain.LoyaltyReason, ref string) *domain.LoyaltyTransaction {
	return &domain.LoyaltyTransaction{
		ID:          uuid.New(),
		ClientID:    clientID,
		Points:      points,
		Reason:      reason,
		ReferenceID: ref,
		CreatedAt:   time.Now(),
	}
}

func TestLoyaltyRepository_AwardsAreIdempotent(t *testing.T) {
	repo := NewLoyaltyRepository(testDB)
	ctx := context.Background()
	client := seedUser(t, domain.RoleClient)

	require.NoError(t, repo.Insert(ctx, ledgerEntry(client.ID, 120, domain.LoyaltyBookingCompleted, "b-1")))
	err := repo.Insert(ctx, ledgerEntry(client.ID, 120, domain.LoyaltyBookingCompleted, "b-1"))
	assert.ErrorIs(t, err, ErrAlreadyAwarded)

	// adjustments are not deduplicated
	require.NoError(t, repo.Insert(ctx, ledgerEntry(client.ID, 10, domain.LoyaltyAdjustment, "")))
	require.NoError(t, repo.Insert(ctx, ledgerEntry(client.ID, 10, domain.LoyaltyAdjustment, "")))

	balance, err := repo.Balance(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 140, balance)
}

func TestLoyaltyRepository_RedeemNeverOverdraws(t *testing.T) {
	repo := NewLoyaltyRepository(testDB)
	ctx := context.Background()
	client := seedUser(t, domain.RoleClient)

	require.NoError(t, repo.Insert(ctx, ledgerEntry(client.ID, 100, domain.LoyaltyOrderPaid, "TC-1")))
	require.NoError(t, repo.Redeem(ctx, ledgerEntry(client.ID, -60, domain.LoyaltyRedemption, "")))
	assert.ErrorIs(t, repo.Redeem(ctx, ledgerEntry(client.ID, -60, domain.LoyaltyRedemption, "")), ErrInsufficientPoints)

	balance, err := repo.Balance(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, balance)

	history, err := repo.Recent(ctx, client.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
