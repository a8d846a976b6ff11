package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingNoShow     BookingStatus = "no_show"
)

// ActiveBookingStatuses occupy the staff member's calendar
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingInProgress}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCompleted, BookingCancelled, BookingNoShow},
	BookingInProgress: {BookingCompleted},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingInProgress, BookingCompleted, BookingCancelled, BookingNoShow:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingNoShow
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is an appointment of a client with a staff member for one service
type Booking struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	ClientID           uuid.UUID     `json:"client_id" db:"client_id"`
	StaffID            uuid.UUID     `json:"staff_id" db:"staff_id"`
	ServiceID          uuid.UUID     `json:"service_id" db:"service_id"`
	StartsAt           time.Time     `json:"starts_at" db:"starts_at"`
	DurationMinutes    int           `json:"duration_minutes" db:"duration_minutes"`
	Status             BookingStatus `json:"status" db:"status"`
	TotalCents         int64         `json:"total_cents" db:"total_cents"`
	DepositCents       int64         `json:"deposit_cents" db:"deposit_cents"`
	Notes              string        `json:"notes" db:"notes"`
	CancellationReason string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

func (b *Booking) EndsAt() time.Time {
	return b.StartsAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// BookingFilter narrows admin and staff booking listings
type BookingFilter struct {
	Status   *BookingStatus
	StaffID  *uuid.UUID
	ClientID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Interval is a half-open [Start, End) span of time
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}
