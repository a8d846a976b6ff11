package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrSlotTaken       = errors.New("the requested time overlaps another booking")
	ErrStatusChanged   = errors.New("booking status changed concurrently")
)

// BookingRepository defines data access for appointments
type BookingRepository interface {
	CreateWithNoOverlap(ctx context.Context, booking *domain.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) error
	Cancel(ctx context.Context, id uuid.UUID, from domain.BookingStatus, reason string, at time.Time) error
	BusyIntervals(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Interval, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, after *time.Time) ([]*domain.Booking, error)
	List(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, int, error)
}

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `id, client_id, staff_id, service_id, starts_at, duration_minutes, status,
	total_cents, deposit_cents, notes, cancellation_reason, cancelled_at, created_at, updated_at`

// overlapClause matches active bookings of a staff member intersecting [$2, $3)
const overlapClause = `
	staff_id = $1
	AND status IN ('pending', 'confirmed', 'in_progress')
	AND starts_at < $3
	AND starts_at + make_interval(mins => duration_minutes) > $2`

func scanBooking(row interface{ Scan(...any) error }, b *domain.Booking) error {
	var cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID,
		&b.ClientID,
		&b.StaffID,
		&b.ServiceID,
		&b.StartsAt,
		&b.DurationMinutes,
		&b.Status,
		&b.TotalCents,
		&b.DepositCents,
		&b.Notes,
		&b.CancellationReason,
		&cancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return nil
}

// CreateWithNoOverlap inserts the booking inside a transaction that serializes
// writers per staff member and rejects any overlap with an active booking.
func (r *bookingRepository) CreateWithNoOverlap(ctx context.Context, b *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin booking transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.StaffID.String()); err != nil {
		return fmt.Errorf("failed to lock staff calendar: %w", err)
	}

	var conflicting uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM bookings WHERE`+overlapClause+` LIMIT 1 FOR UPDATE`,
		b.StaffID, b.StartsAt, b.EndsAt(),
	).Scan(&conflicting)
	if err == nil {
		return ErrSlotTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check booking overlap: %w", err)
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, query,
		b.ID,
		b.ClientID,
		b.StaffID,
		b.ServiceID,
		b.StartsAt,
		b.DurationMinutes,
		b.Status,
		b.TotalCents,
		b.DepositCents,
		b.Notes,
		b.CancellationReason,
		b.CancelledAt,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id), b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return b, nil
}

// UpdateStatus moves a booking from one status to another; the update only
// applies while the row still holds the expected status.
func (r *bookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return expectRows(result, ErrStatusChanged)
}

func (r *bookingRepository) Cancel(ctx context.Context, id uuid.UUID, from domain.BookingStatus, reason string, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancellation_reason = $3, cancelled_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, from, reason, at)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	return expectRows(result, ErrStatusChanged)
}

// BusyIntervals returns the occupied spans of a staff member between from and to
func (r *bookingRepository) BusyIntervals(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Interval, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT starts_at, duration_minutes FROM bookings WHERE`+overlapClause+` ORDER BY starts_at`,
		staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load staff calendar: %w", err)
	}
	defer rows.Close()

	intervals := []domain.Interval{}
	for rows.Next() {
		var start time.Time
		var minutes int
		if err := rows.Scan(&start, &minutes); err != nil {
			return nil, fmt.Errorf("failed to scan busy interval: %w", err)
		}
		intervals = append(intervals, domain.Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating busy intervals: %w", err)
	}
	return intervals, nil
}

// ListByClient returns a client's bookings, only those starting after the given time when set
func (r *bookingRepository) ListByClient(ctx context.Context, clientID uuid.UUID, after *time.Time) ([]*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE client_id = $1 AND ($2::timestamptz IS NULL OR starts_at >= $2)
		ORDER BY starts_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, clientID, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list client bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// List filters bookings for the staff and admin dashboards
func (r *bookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error) {
	page, pageSize := normalizePage(f.Page, f.PageSize)

	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	add := func(cond string, v interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argIndex))
		args = append(args, v)
		argIndex++
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.StaffID != nil {
		add("staff_id = $%d", *f.StaffID)
	}
	if f.ClientID != nil {
		add("client_id = $%d", *f.ClientID)
	}
	if f.From != nil {
		add("starts_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("starts_at < $%d", *f.To)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM bookings
		%s
		ORDER BY starts_at ASC, id
		LIMIT $%d OFFSET $%d
	`, bookingColumns, whereClause, argIndex, argIndex+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func collectBookings(rows *sql.Rows) ([]*domain.Booking, error) {
	bookings := []*domain.Booking{}
	for rows.Next() {
		b := &domain.Booking{}
		if err := scanBooking(rows, b); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
