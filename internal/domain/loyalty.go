package domain

import (
	"time"

	"github.com/google/uuid"
)

type LoyaltyReason string

const (
	LoyaltyBookingCompleted LoyaltyReason = "booking_completed"
	LoyaltyOrderPaid        LoyaltyReason = "order_paid"
	LoyaltyReviewApproved   LoyaltyReason = "review_approved"
	LoyaltyRedemption       LoyaltyReason = "redemption"
	LoyaltyAdjustment       LoyaltyReason = "adjustment"
)

// ReviewBonusPoints is credited the first time a review is published
const ReviewBonusPoints = 50

// LoyaltyTransaction is a signed point adjustment
type LoyaltyTransaction struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	ClientID    uuid.UUID     `json:"client_id" db:"client_id"`
	Points      int           `json:"points" db:"points"`
	Reason      LoyaltyReason `json:"reason" db:"reason"`
	ReferenceID string        `json:"reference_id,omitempty" db:"reference_id"`
	Description string        `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

type LoyaltyTier struct {
	Name      string `json:"name"`
	MinPoints int    `json:"min_points"`
}

// LoyaltyTiers is ordered by ascending threshold
var LoyaltyTiers = []LoyaltyTier{
	{Name: "Member", MinPoints: 0},
	{Name: "Silver", MinPoints: 250},
	{Name: "Gold", MinPoints: 750},
	{Name: "Platinum", MinPoints: 1500},
}

// GetLoyaltyTier returns the highest tier reached by points and how many
// points remain until the next one (0 at the top tier).
func GetLoyaltyTier(points int) (LoyaltyTier, int) {
	current := LoyaltyTiers[0]
	toNext := 0
	for i, tier := range LoyaltyTiers {
		if points >= tier.MinPoints {
			current = tier
			toNext = 0
			if i+1 < len(LoyaltyTiers) {
				toNext = LoyaltyTiers[i+1].MinPoints - points
			}
		}
	}
	if points < 0 && len(LoyaltyTiers) > 1 {
		toNext = LoyaltyTiers[1].MinPoints - points
	}
	return current, toNext
}

// PointsForCents converts a spend to points: one point per whole currency unit
func PointsForCents(cents int64) int {
	if cents <= 0 {
		return 0
	}
	return int(cents / 100)
}

type LoyaltySummary struct {
	Balance      int                   `json:"balance"`
	Tier         LoyaltyTier           `json:"tier"`
	PointsToNext int                   `json:"points_to_next"`
	Recent       []*LoyaltyTransaction `json:"recent"`
}
