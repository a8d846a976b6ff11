package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
)

// UserRepository defines the interface for profile data access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string, tags []string) error
	ListClients(ctx context.Context, search string, page, pageSize int) ([]*domain.ClientSummary, int, error)
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, notes,
	array_to_string(tags, ','), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, user *domain.User) error {
	var tags string
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Role,
		&user.Notes,
		&tags,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return err
	}
	user.Tags = splitTags(tags)
	return nil
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// Create inserts a new user into the database using parameterized queries
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role, notes, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, string_to_array($9, ','), $10, $11)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.Role,
		user.Notes,
		strings.Join(user.Tags, ","),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// FindByEmail retrieves a user by email using parameterized queries
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user := &domain.User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, email), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// FindByID retrieves a user by ID using parameterized queries
func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &domain.User{}
	if err := scanUser(r.db.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// UpdateProfile updates the self-service profile fields
func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, phone = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, user.ID, user.FirstName, user.LastName, user.Phone, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	return expectRows(result, ErrUserNotFound)
}

// UpdateNotes stores the CRM notes and tags kept by the studio about a client
func (r *userRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, tags []string) error {
	query := `
		UPDATE users
		SET notes = $2, tags = string_to_array($3, ','), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, notes, strings.Join(tags, ","))
	if err != nil {
		return fmt.Errorf("failed to update client notes: %w", err)
	}

	return expectRows(result, ErrUserNotFound)
}

// ListClients returns clients with their booking count, lifetime spend and loyalty balance
func (r *userRepository) ListClients(ctx context.Context, search string, page, pageSize int) ([]*domain.ClientSummary, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	pattern := "%" + strings.TrimSpace(search) + "%"

	countQuery := `
		SELECT COUNT(*)
		FROM users
		WHERE role = 'client'
		  AND (email ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1)
	`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count clients: %w", err)
	}

	query := `
		SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.phone, u.role, u.notes,
			array_to_string(u.tags, ','), u.created_at, u.updated_at,
			(SELECT COUNT(*) FROM bookings b WHERE b.client_id = u.id),
			(SELECT COALESCE(SUM(b.total_cents), 0) FROM bookings b WHERE b.client_id = u.id AND b.status = 'completed')
			+ (SELECT COALESCE(SUM(o.total_cents), 0) FROM orders o WHERE o.client_id = u.id AND o.status IN ('paid', 'ready', 'shipped', 'completed')),
			(SELECT COALESCE(SUM(l.points), 0) FROM loyalty_transactions l WHERE l.client_id = u.id)
		FROM users u
		WHERE u.role = 'client'
		  AND (u.email ILIKE $1 OR u.first_name ILIKE $1 OR u.last_name ILIKE $1)
		ORDER BY u.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, pattern, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := []*domain.ClientSummary{}
	for rows.Next() {
		c := &domain.ClientSummary{}
		var tags string
		err := rows.Scan(
			&c.ID,
			&c.Email,
			&c.PasswordHash,
			&c.FirstName,
			&c.LastName,
			&c.Phone,
			&c.Role,
			&c.Notes,
			&tags,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.BookingCount,
			&c.LifetimeCents,
			&c.LoyaltyBalance,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan client: %w", err)
		}
		c.Tags = splitTags(tags)
		clients = append(clients, c)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, total, nil
}
