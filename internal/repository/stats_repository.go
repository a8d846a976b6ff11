package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studio-api/internal/domain"
)

// StatsWindow bounds the periods the admin overview reports on
type StatsWindow struct {
	DayStart      time.Time
	DayEnd        time.Time
	Now           time.Time
	UpcomingUntil time.Time
	MonthStart    time.Time
	LowStock      int
}

// StatsRepository aggregates counters for the admin dashboard
type StatsRepository interface {
	Dashboard(ctx context.Context, w StatsWindow) (*domain.DashboardStats, error)
}

type statsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) Dashboard(ctx context.Context, w StatsWindow) (*domain.DashboardStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM bookings
			  WHERE starts_at >= $1 AND starts_at < $2 AND status NOT IN ('cancelled', 'no_show')),
			(SELECT COUNT(*) FROM bookings
			  WHERE starts_at >= $3 AND starts_at < $4 AND status IN ('pending', 'confirmed')),
			(SELECT COUNT(*) FROM reviews WHERE status = 'pending'),
			(SELECT COUNT(*) FROM enrollments WHERE status IN ('enrolled', 'in_progress')),
			(SELECT COUNT(*) FROM products WHERE availability = 'in_stock' AND stock_count <= $6),
			(SELECT COALESCE(SUM(total_cents), 0) FROM bookings
			  WHERE status = 'completed' AND starts_at >= $5)
			+ (SELECT COALESCE(SUM(total_cents), 0) FROM orders
			  WHERE status IN ('paid', 'ready', 'shipped', 'completed') AND created_at >= $5)
	`

	stats := &domain.DashboardStats{}
	err := r.db.QueryRowContext(ctx, query, w.DayStart, w.DayEnd, w.Now, w.UpcomingUntil, w.MonthStart, w.LowStock).Scan(
		&stats.BookingsToday,
		&stats.UpcomingBookings,
		&stats.PendingReviews,
		&stats.ActiveEnrollments,
		&stats.LowStockProducts,
		&stats.RevenueMonthCents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}
	return stats, nil
}
