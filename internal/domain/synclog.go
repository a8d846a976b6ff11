package domain

import (
	"time"

	"github.com/google/uuid"
)

// Integration providers recorded in the sync log
const (
	ProviderStripe = "stripe"
	ProviderCRM    = "crm"
	ProviderEmail  = "email"
)

const (
	SyncSuccess = "success"
	SyncError   = "error"
)

// SyncLog records the outcome of a call to an external collaborator
type SyncLog struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Provider   string    `json:"provider" db:"provider"`
	Direction  string    `json:"direction" db:"direction"`
	Status     string    `json:"status" db:"status"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Message    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DashboardStats backs the admin overview
type DashboardStats struct {
	BookingsToday     int   `json:"bookings_today"`
	UpcomingBookings  int   `json:"upcoming_bookings"`
	PendingReviews    int   `json:"pending_reviews"`
	ActiveEnrollments int   `json:"active_enrollments"`
	LowStockProducts  int   `json:"low_stock_products"`
	RevenueMonthCents int64 `json:"revenue_month_cents"`
}
