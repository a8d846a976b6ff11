package domain

import (
	"time"

	"github.com/google/uuid"
)

type FulfillmentMethod string

const (
	FulfillmentPickup   FulfillmentMethod = "pickup"
	FulfillmentDelivery FulfillmentMethod = "delivery"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderReady     OrderStatus = "ready"
	OrderShipped   OrderStatus = "shipped"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderReady, OrderShipped, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderCancelled},
	OrderPaid:    {OrderReady, OrderShipped, OrderCancelled},
	OrderReady:   {OrderCompleted, OrderCancelled},
	OrderShipped: {OrderCompleted},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Restocks reports whether cancelling from this status returns stock
func (s OrderStatus) Restocks() bool {
	return s == OrderPending || s == OrderPaid
}

// Order is one purchased product line; lines placed together share OrderNumber
type Order struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	OrderNumber       string            `json:"order_number" db:"order_number"`
	ClientID          uuid.UUID         `json:"client_id" db:"client_id"`
	ProductID         uuid.UUID         `json:"product_id" db:"product_id"`
	ProductTitle      string            `json:"product_title" db:"product_title"`
	Quantity          int               `json:"quantity" db:"quantity"`
	UnitPriceCents    int64             `json:"unit_price_cents" db:"unit_price_cents"`
	TotalCents        int64             `json:"total_cents" db:"total_cents"`
	FulfillmentMethod FulfillmentMethod `json:"fulfillment_method" db:"fulfillment_method"`
	Status            OrderStatus       `json:"status" db:"status"`
	PaymentSessionID  string            `json:"-" db:"payment_session_id"`
	PaymentURL        string            `json:"payment_url,omitempty" db:"payment_url"`
	Notes             string            `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// MaxLineQuantity bounds one product line of a checkout
const MaxLineQuantity = 1000

// CartItem is a requested product line at checkout
type CartItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gte=1,lte=1000"`
}
