package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OrderRepository defines data access for shop orders
type OrderRepository interface {
	PlaceOrders(ctx context.Context, orders []*domain.Order, decrements map[uuid.UUID]int) error
	SetPaymentLink(ctx context.Context, orderNumber, sessionID, url string) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) ([]*domain.Order, error)
	MarkPaidBySession(ctx context.Context, sessionID string) ([]*domain.Order, error)
	FindBySession(ctx context.Context, sessionID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, restock bool) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Order, error)
	List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, client_id, product_id, product_title, quantity, unit_price_cents,
	total_cents, fulfillment_method, status, payment_session_id, payment_url, notes, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }, o *domain.Order) error {
	return row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.ClientID,
		&o.ProductID,
		&o.ProductTitle,
		&o.Quantity,
		&o.UnitPriceCents,
		&o.TotalCents,
		&o.FulfillmentMethod,
		&o.Status,
		&o.PaymentSessionID,
		&o.PaymentURL,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

// PlaceOrders decrements stock for tracked products and inserts every order
// line in one transaction. A decrement that would go negative aborts the
// whole checkout with ErrInsufficientStock.
func (r *orderRepository) PlaceOrders(ctx context.Context, orders []*domain.Order, decrements map[uuid.UUID]int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	// Fixed lock order keeps overlapping checkouts from deadlocking
	for _, productID := range sortedProductIDs(decrements) {
		quantity := decrements[productID]
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_count = stock_count - $2, updated_at = NOW()
			WHERE id = $1 AND stock_count >= $2
		`, productID, quantity)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		if err := expectRows(result, ErrInsufficientStock); err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
			}
			return err
		}
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	for _, o := range orders {
		_, err := tx.ExecContext(ctx, query,
			o.ID,
			o.OrderNumber,
			o.ClientID,
			o.ProductID,
			o.ProductTitle,
			o.Quantity,
			o.UnitPriceCents,
			o.TotalCents,
			o.FulfillmentMethod,
			o.Status,
			o.PaymentSessionID,
			o.PaymentURL,
			o.Notes,
			o.CreatedAt,
			o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit orders: %w", err)
	}
	return nil
}

func sortedProductIDs(decrements map[uuid.UUID]int) []uuid.UUID {
	ids := slices.Collect(maps.Keys(decrements))
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

func (r *orderRepository) SetPaymentLink(ctx context.Context, orderNumber, sessionID, url string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_session_id = $2, payment_url = $3, updated_at = NOW()
		WHERE order_number = $1
	`, orderNumber, sessionID, url)
	if err != nil {
		return fmt.Errorf("failed to store payment link: %w", err)
	}
	return expectRows(result, ErrOrderNotFound)
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o := &domain.Order{}
	err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), o)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}
	return o, nil
}

func (r *orderRepository) FindByNumber(ctx context.Context, orderNumber string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1 ORDER BY created_at`, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders, nil
}

// MarkPaidBySession flips the pending lines of a checkout session to paid and
// returns only the lines it changed, so a replayed webhook returns none.
func (r *orderRepository) MarkPaidBySession(ctx context.Context, sessionID string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE orders SET status = 'paid', updated_at = NOW()
		WHERE payment_session_id = $1 AND status = 'pending'
		RETURNING `+orderColumns, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark orders paid: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// FindBySession returns every line of a checkout session whatever its status
func (r *orderRepository) FindBySession(ctx context.Context, sessionID string) ([]*domain.Order, error) {
	if sessionID == "" {
		return []*domain.Order{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// UpdateStatus applies a status change guarded on the current status. When
// restock is set the line quantity is returned to an in-stock product.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, restock bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order update: %w", err)
	}
	defer tx.Rollback()

	var productID uuid.UUID
	var quantity int
	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING product_id, quantity
	`, id, from, to).Scan(&productID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if restock {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_count = stock_count + $2, updated_at = NOW()
			WHERE id = $1 AND availability = 'in_stock'
		`, productID, quantity)
		if err != nil {
			return fmt.Errorf("failed to restock product: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order update: %w", err)
	}
	return nil
}

func (r *orderRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list client orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *orderRepository) List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	var arg *string
	if status != nil {
		s := string(*status)
		arg = &s
	}

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE ($1::text IS NULL OR status = $1)`, arg).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, arg, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	orders := []*domain.Order{}
	for rows.Next() {
		o := &domain.Order{}
		if err := scanOrder(rows, o); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}
