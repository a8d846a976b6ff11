package domain

import (
	"time"

	"github.com/google/uuid"
)

type PricingType string

const (
	PricingFixed           PricingType = "fixed_price"
	PricingStartingAt      PricingType = "starting_at"
	PricingRange           PricingType = "price_range"
	PricingContactForQuote PricingType = "contact_for_quote"
)

type Availability string

const (
	AvailabilityInStock     Availability = "in_stock"
	AvailabilityMadeToOrder Availability = "made_to_order"
	AvailabilityPreOrder    Availability = "pre_order"
	AvailabilityOutOfStock  Availability = "out_of_stock"
)

// Product represents a product in the shop catalog
type Product struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Title        string       `json:"title" db:"title"`
	Slug         string       `json:"slug" db:"slug"`
	Description  string       `json:"description" db:"description"`
	Category     string       `json:"category" db:"category"`
	PricingType  PricingType  `json:"pricing_type" db:"pricing_type"`
	PriceCents   int64        `json:"price_cents" db:"price_cents"`
	Availability Availability `json:"availability" db:"availability"`
	StockCount   int          `json:"stock_count" db:"stock_count"`
	Published    bool         `json:"published" db:"published"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// TracksStock reports whether orders draw down stock_count
func (p *Product) TracksStock() bool {
	return p.Availability == AvailabilityInStock
}
