package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrAlreadyAwarded    = errors.New("points already awarded for this reference")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
)

// LoyaltyRepository is the append-only ledger of point adjustments
type LoyaltyRepository interface {
	Insert(ctx context.Context, tx *domain.LoyaltyTransaction) error
	Redeem(ctx context.Context, tx *domain.LoyaltyTransaction) error
	Balance(ctx context.Context, clientID uuid.UUID) (int, error)
	Recent(ctx context.Context, clientID uuid.UUID, limit int) ([]*domain.LoyaltyTransaction, error)
}

type loyaltyRepository struct {
	db *sql.DB
}

func NewLoyaltyRepository(db *sql.DB) LoyaltyRepository {
	return &loyaltyRepository{db: db}
}

const insertLoyalty = `
	INSERT INTO loyalty_transactions (id, client_id, points, reason, reference_id, description, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Insert appends a ledger row; award reasons are unique per (client, reason, reference)
func (r *loyaltyRepository) Insert(ctx context.Context, t *domain.LoyaltyTransaction) error {
	_, err := r.db.ExecContext(ctx, insertLoyalty,
		t.ID, t.ClientID, t.Points, t.Reason, t.ReferenceID, t.Description, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "uq_loyalty_award") {
			return ErrAlreadyAwarded
		}
		return fmt.Errorf("failed to insert loyalty transaction: %w", err)
	}
	return nil
}

// Redeem debits points while holding a per-client advisory lock so two
// concurrent redemptions cannot overdraw the balance.
func (r *loyaltyRepository) Redeem(ctx context.Context, t *domain.LoyaltyTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin redemption: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "loyalty:"+t.ClientID.String()); err != nil {
		return fmt.Errorf("failed to lock loyalty balance: %w", err)
	}

	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM loyalty_transactions WHERE client_id = $1`, t.ClientID,
	).Scan(&balance)
	if err != nil {
		return fmt.Errorf("failed to read loyalty balance: %w", err)
	}
	if balance+t.Points < 0 {
		return ErrInsufficientPoints
	}

	if _, err := tx.ExecContext(ctx, insertLoyalty,
		t.ID, t.ClientID, t.Points, t.Reason, t.ReferenceID, t.Description, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit redemption: %w", err)
	}
	return nil
}

func (r *loyaltyRepository) Balance(ctx context.Context, clientID uuid.UUID) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM loyalty_transactions WHERE client_id = $1`, clientID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read loyalty balance: %w", err)
	}
	return balance, nil
}

func (r *loyaltyRepository) Recent(ctx context.Context, clientID uuid.UUID, limit int) ([]*domain.LoyaltyTransaction, error) {
	_, limit = normalizePage(1, limit)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, points, reason, reference_id, description, created_at
		FROM loyalty_transactions
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list loyalty history: %w", err)
	}
	defer rows.Close()

	history := []*domain.LoyaltyTransaction{}
	for rows.Next() {
		t := &domain.LoyaltyTransaction{}
		if err := rows.Scan(&t.ID, &t.ClientID, &t.Points, &t.Reason, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty transaction: %w", err)
		}
		history = append(history, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loyalty history: %w", err)
	}
	return history, nil
}
