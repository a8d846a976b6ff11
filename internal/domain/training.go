package domain

import (
	"time"

	"github.com/google/uuid"
)

type TrainingProgram struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Slug        string     `json:"slug" db:"slug"`
	Description string     `json:"description" db:"description"`
	PriceCents  int64      `json:"price_cents" db:"price_cents"`
	Sessions    int        `json:"sessions" db:"sessions"`
	Capacity    int        `json:"capacity" db:"capacity"`
	Published   bool       `json:"published" db:"published"`
	StartsOn    *time.Time `json:"starts_on,omitempty" db:"starts_on"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type EnrollmentStatus string

const (
	EnrollmentWaitlisted EnrollmentStatus = "waitlisted"
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentWithdrawn  EnrollmentStatus = "withdrawn"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentWaitlisted, EnrollmentEnrolled, EnrollmentInProgress, EnrollmentCompleted, EnrollmentWithdrawn:
		return true
	}
	return false
}

// HoldsSeat reports whether the enrollment counts against program capacity
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentEnrolled || s == EnrollmentInProgress || s == EnrollmentCompleted
}

type Enrollment struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	ClientID          uuid.UUID        `json:"client_id" db:"client_id"`
	ProgramID         uuid.UUID        `json:"program_id" db:"program_id"`
	Status            EnrollmentStatus `json:"status" db:"status"`
	SessionsCompleted int              `json:"sessions_completed" db:"sessions_completed"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}
