package service

import (
	"context"
	"sync"
	"testing"

	"studio-api/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAwardIsIdempotentPerReference(t *testing.T) {
	repo := newMockLoyaltyRepository()
	svc := NewLoyaltyService(repo, zap.NewNop())
	ctx := context.Background()
	client := uuid.New()

	created, err := svc.Award(ctx, client, 120, domain.LoyaltyBookingCompleted, "booking-1", "")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Award(ctx, client, 120, domain.LoyaltyBookingCompleted, "booking-1", "")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.Award(ctx, client, 0, domain.LoyaltyOrderPaid, "order-1", "")
	require.NoError(t, err)
	assert.False(t, created)

	balance, err := svc.Balance(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 120, balance)
}

func TestRedeemRejectsOverdraft(t *testing.T) {
	svc := NewLoyaltyService(newMockLoyaltyRepository(), zap.NewNop())
	ctx := context.Background()
	client := uuid.New()

	_, err := svc.Award(ctx, client, 300, domain.LoyaltyBookingCompleted, "b1", "")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, client, 301, "")
	assert.Equal(t, "not enough points: 301 requested", businessMessage(t, err))

	balance, err := svc.Redeem(ctx, client, 200, "Lash refill discount")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	_, err = svc.Redeem(ctx, client, 0, "")
	assert.Error(t, err)

	balance, err = svc.Adjust(ctx, client, -100, "correction")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = svc.Adjust(ctx, client, -1, "correction")
	assert.Error(t, err)
}

func TestSummaryReportsTier(t *testing.T) {
	svc := NewLoyaltyService(newMockLoyaltyRepository(), zap.NewNop())
	ctx := context.Background()
	client := uuid.New()

	_, err := svc.Adjust(ctx, client, 800, "welcome back")
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, 800, summary.Balance)
	assert.Equal(t, "Gold", summary.Tier.Name)
	assert.Equal(t, 700, summary.PointsToNext)
	assert.Len(t, summary.Recent, 1)
}

func TestProperty_ConcurrentRedemptionsNeverOverdraw(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("the balance stays non-negative", prop.ForAll(
		func(initial int, requests []int) bool {
			svc := NewLoyaltyService(newMockLoyaltyRepository(), zap.NewNop())
			ctx := context.Background()
			client := uuid.New()
			if _, err := svc.Award(ctx, client, initial, domain.LoyaltyAdjustment, "seed", ""); err != nil {
				return false
			}

			var wg sync.WaitGroup
			for _, points := range requests {
				wg.Add(1)
				go func(points int) {
					defer wg.Done()
					_, _ = svc.Redeem(ctx, client, points, "")
				}(points)
			}
			wg.Wait()

			balance, err := svc.Balance(ctx, client)
			return err == nil && balance >= 0
		},
		gen.IntRange(1, 500),
		gen.SliceOf(gen.IntRange(1, 200)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
