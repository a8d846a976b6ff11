package domain

import (
	"time"

	"github.com/google/uuid"
)

// Service is a bookable offering
type Service struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Slug            string    `json:"slug" db:"slug"`
	Description     string    `json:"description" db:"description"`
	Category        string    `json:"category" db:"category"`
	PriceCents      int64     `json:"price_cents" db:"price_cents"`
	DepositCents    int64     `json:"deposit_cents" db:"deposit_cents"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Active          bool      `json:"active" db:"active"`
	SortOrder       int       `json:"sort_order" db:"sort_order"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
