package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewFeatured ReviewStatus = "featured"
	ReviewHidden   ReviewStatus = "hidden"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewFeatured, ReviewHidden:
		return true
	}
	return false
}

// Public reviews are shown on the landing page
func (s ReviewStatus) Public() bool {
	return s == ReviewApproved || s == ReviewFeatured
}

type Review struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	ClientID     uuid.UUID    `json:"client_id" db:"client_id"`
	BookingID    *uuid.UUID   `json:"booking_id,omitempty" db:"booking_id"`
	ServiceID    *uuid.UUID   `json:"service_id,omitempty" db:"service_id"`
	Rating       int          `json:"rating" db:"rating"`
	Title        string       `json:"title" db:"title"`
	Body         string       `json:"body" db:"body"`
	Status       ReviewStatus `json:"status" db:"status"`
	AdminReply   string       `json:"admin_reply,omitempty" db:"admin_reply"`
	BonusAwarded bool         `json:"-" db:"bonus_awarded"`
	ClientName   string       `json:"client_name,omitempty" db:"-"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// ReviewSummary aggregates the public reviews
type ReviewSummary struct {
	AverageRating float64 `json:"average_rating"`
	TotalCount    int     `json:"total_count"`
}
