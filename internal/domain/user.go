package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role names accepted by the users.role column
const (
	RoleClient    = "client"
	RoleAssistant = "assistant"
	RoleAdmin     = "admin"
)

// User is a studio profile: a client, an assistant (staff) or an admin
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Phone        string    `json:"phone" db:"phone"`
	Role         string    `json:"role" db:"role"`
	Notes        string    `json:"notes,omitempty" db:"notes"`
	Tags         []string  `json:"tags,omitempty" db:"tags"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsStaff reports whether the user can be assigned bookings
func (u *User) IsStaff() bool {
	return u.Role == RoleAssistant || u.Role == RoleAdmin
}

// RefreshToken is an opaque, revocable session token
type RefreshToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}

// ClientSummary is the CRM view of a client
type ClientSummary struct {
	User
	BookingCount   int   `json:"booking_count"`
	LifetimeCents  int64 `json:"lifetime_cents"`
	LoyaltyBalance int   `json:"loyalty_balance"`
}

// RedirectPathForRole returns the dashboard a user lands on after signing in
func RedirectPathForRole(role string) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleAssistant:
		return "/assistant"
	default:
		return "/dashboard"
	}
}
