package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio-api/internal/crm"
	"studio-api/internal/domain"
	"studio-api/internal/notifier"
	"studio-api/internal/obs"
	"studio-api/internal/payment"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductInput carries the editable fields of a shop product
type ProductInput struct {
	Title        string              `json:"title" validate:"required,min=2,max=200"`
	Slug         string              `json:"slug" validate:"omitempty,max=200"`
	Description  string              `json:"description" validate:"max=5000"`
	Category     string              `json:"category" validate:"required,max=50"`
	PricingType  domain.PricingType  `json:"pricing_type" validate:"required,oneof=fixed_price starting_at price_range contact_for_quote"`
	PriceCents   int64               `json:"price_cents" validate:"gte=0"`
	Availability domain.Availability `json:"availability" validate:"required,oneof=in_stock made_to_order pre_order out_of_stock"`
	StockCount   int                 `json:"stock_count" validate:"gte=0"`
	Published    bool                `json:"published"`
}

// PlaceOrderInput is a checkout request
type PlaceOrderInput struct {
	Items       []domain.CartItem        `json:"items" validate:"required,max=50,dive"`
	Fulfillment domain.FulfillmentMethod `json:"fulfillment_method" validate:"required,oneof=pickup delivery"`
	Notes       string                   `json:"notes" validate:"max=1000"`
}

// PlaceOrderResult is the outcome of a successful checkout. PaymentURL is
// empty when the order is free or the payment link could not be created.
type PlaceOrderResult struct {
	Orders      []*domain.Order `json:"orders"`
	OrderNumber string          `json:"order_number"`
	PaymentURL  string          `json:"payment_url,omitempty"`
}

type ShopService interface {
	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error)
	GetProduct(ctx context.Context, slug string, includeUnpublished bool) (*domain.Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error)
	PlaceOrder(ctx context.Context, clientID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error)
	ListClientOrders(ctx context.Context, clientID uuid.UUID) ([]*domain.Order, error)
	ListOrders(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	HandlePaymentCompleted(ctx context.Context, sessionID string) error
	HandlePaymentEvent(ctx context.Context, event *payment.WebhookEvent) error
}

// ShopServiceDeps groups the collaborators of the shop service
type ShopServiceDeps struct {
	Products   repository.ProductRepository
	Orders     repository.OrderRepository
	Users      repository.UserRepository
	Loyalty    LoyaltyService
	Payments   payment.LinkProvider
	Dispatcher *Dispatcher
	Sync       SyncRecorder
	Now        func() time.Time
	Logger     *zap.Logger
}

type shopService struct {
	ShopServiceDeps
}

func NewShopService(deps ShopServiceDeps) ShopService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &shopService{ShopServiceDeps: deps}
}

func (s *shopService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	return s.Products.List(ctx, filter)
}

func (s *shopService) GetProduct(ctx context.Context, slug string, includeUnpublished bool) (*domain.Product, error) {
	product, err := s.Products.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !product.Published && !includeUnpublished {
		return nil, repository.ErrProductNotFound
	}
	return product, nil
}

func validateProductInput(input ProductInput) error {
	if input.PricingType != domain.PricingContactForQuote && input.PriceCents <= 0 {
		return businessErrorf("a priced product needs a price above zero")
	}
	if input.StockCount < 0 {
		return businessErrorf("stock cannot be negative")
	}
	return nil
}

func (s *shopService) CreateProduct(ctx context.Context, input ProductInput) (*domain.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	product := &domain.Product{
		ID:        uuid.New(),
		CreatedAt: now,
	}
	applyProductInput(product, input, now)

	if err := s.Products.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductAlreadyExists) {
			return nil, businessErrorf("a product with the slug %q already exists", product.Slug)
		}
		return nil, err
	}

	s.Logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("slug", product.Slug))
	return product, nil
}

func (s *shopService) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product, err := s.Products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyProductInput(product, input, time.Now())

	if err := s.Products.Update(ctx, product); err != nil {
		if errors.Is(err, repository.ErrProductAlreadyExists) {
			return nil, businessErrorf("a product with the slug %q already exists", product.Slug)
		}
		return nil, err
	}
	return product, nil
}

func applyProductInput(p *domain.Product, input ProductInput, now time.Time) {
	p.Title = strings.TrimSpace(input.Title)
	p.Slug = slugify(input.Slug)
	if p.Slug == "" {
		p.Slug = slugify(input.Title)
	}
	p.Description = input.Description
	p.Category = strings.ToLower(strings.TrimSpace(input.Category))
	p.PricingType = input.PricingType
	p.PriceCents = input.PriceCents
	p.Availability = input.Availability
	p.StockCount = input.StockCount
	p.Published = input.Published
	p.UpdatedAt = now
}

type cartLine struct {
	product  *domain.Product
	quantity int
}

// validateCart applies the checkout rules in order and returns one line per
// distinct product. Repeated product ids are merged.
func validateCart(items []domain.CartItem, products map[uuid.UUID]*domain.Product) ([]cartLine, error) {
	if len(items) == 0 {
		return nil, businessErrorf("cart is empty")
	}

	var lines []cartLine
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, businessErrorf("quantity must be at least 1")
		}
		if item.Quantity > domain.MaxLineQuantity {
			return nil, businessErrorf("quantity cannot exceed %d", domain.MaxLineQuantity)
		}
		if i, ok := index[item.ProductID]; ok {
			lines[i].quantity += item.Quantity
			if lines[i].quantity > domain.MaxLineQuantity {
				return nil, businessErrorf("quantity cannot exceed %d", domain.MaxLineQuantity)
			}
			continue
		}
		product, ok := products[item.ProductID]
		if !ok {
			return nil, businessErrorf("a product in your cart is not available")
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, cartLine{product: product, quantity: item.Quantity})
	}

	for _, line := range lines {
		p := line.product
		switch {
		case !p.Published:
			return nil, businessErrorf("%s is not available", p.Title)
		case p.Availability == domain.AvailabilityOutOfStock:
			return nil, businessErrorf("%s is out of stock", p.Title)
		case p.PricingType == domain.PricingContactForQuote:
			return nil, businessErrorf("%s requires a quote", p.Title)
		case p.TracksStock() && line.quantity > p.StockCount:
			return nil, businessErrorf("Only %d of %s available", p.StockCount, p.Title)
		}
	}
	return lines, nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("TC-%s-%s", now.UTC().Format("20060102"), suffix)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func (s *shopService) PlaceOrder(ctx context.Context, clientID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error) {
	ctx, span := obs.Start(ctx, "ShopService.PlaceOrder")
	defer span.End()

	if input.Fulfillment != domain.FulfillmentPickup && input.Fulfillment != domain.FulfillmentDelivery {
		return nil, businessErrorf("choose pickup or delivery")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.ProductID)
	}
	products := map[uuid.UUID]*domain.Product{}
	if len(ids) > 0 {
		var err error
		if products, err = s.Products.FindByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	lines, err := validateCart(input.Items, products)
	if err != nil {
		s.Logger.Debug("Checkout rejected", zap.String("client_id", clientID.String()), zap.Error(err))
		return nil, err
	}

	now := s.Now()
	number := newOrderNumber(now)
	orders := make([]*domain.Order, 0, len(lines))
	decrements := map[uuid.UUID]int{}
	var total int64
	for _, line := range lines {
		o := &domain.Order{
			ID:                uuid.New(),
			OrderNumber:       number,
			ClientID:          clientID,
			ProductID:         line.product.ID,
			ProductTitle:      line.product.Title,
			Quantity:          line.quantity,
			UnitPriceCents:    line.product.PriceCents,
			TotalCents:        line.product.PriceCents * int64(line.quantity),
			FulfillmentMethod: input.Fulfillment,
			Status:            domain.OrderPending,
			Notes:             input.Notes,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		orders = append(orders, o)
		total += o.TotalCents
		if line.product.TracksStock() {
			decrements[line.product.ID] = line.quantity
		}
	}
	span.SetAttributes(attribute.String("order_number", number), attribute.Int64("total_cents", total))

	if err := s.Orders.PlaceOrders(ctx, orders, decrements); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, businessErrorf("an item in your cart just sold out, please review your cart")
		}
		return nil, err
	}

	s.Logger.Info("Order placed",
		zap.String("order_number", number),
		zap.String("client_id", clientID.String()),
		zap.Int("lines", len(orders)),
		zap.Int64("total_cents", total),
	)

	result := &PlaceOrderResult{Orders: orders, OrderNumber: number}

	client, err := s.Users.FindByID(ctx, clientID)
	if err != nil {
		s.Logger.Warn("Order placed for unknown profile", zap.String("order_number", number), zap.Error(err))
		client = &domain.User{ID: clientID}
	}

	if total > 0 {
		result.PaymentURL = s.createPaymentLink(ctx, number, client.Email, orders)
	}

	s.Dispatcher.Deal(ctx, "order", number, crm.DealEvent{
		Kind:       crm.DealOrder,
		ClientID:   clientID.String(),
		Email:      client.Email,
		Name:       client.FullName(),
		Title:      "Shop order " + number,
		ValueCents: total,
		Reference:  number,
	})
	s.Dispatcher.Email(ctx, "order", number, notifier.EmailJob{
		Template: notifier.TemplateOrderPlaced,
		To:       client.Email,
		Name:     client.FirstName,
		Data: map[string]string{
			"order_number": number,
			"total":        formatCents(total),
			"payment_url":  result.PaymentURL,
		},
	})

	return result, nil
}

// createPaymentLink never fails the checkout: the orders are already
// committed, so errors are recorded and the caller gets no link.
func (s *shopService) createPaymentLink(ctx context.Context, number, email string, orders []*domain.Order) string {
	items := make([]payment.LineItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, payment.LineItem{
			Name:            o.ProductTitle,
			UnitAmountCents: o.UnitPriceCents,
			Quantity:        int64(o.Quantity),
		})
	}

	link, err := s.Payments.CreateLink(ctx, payment.LinkRequest{
		OrderNumber:   number,
		CustomerEmail: email,
		Items:         items,
	})
	if err != nil {
		s.Sync.Failure(ctx, domain.ProviderStripe, "order", number, err)
		return ""
	}
	if link == nil {
		return ""
	}

	if err := s.Orders.SetPaymentLink(ctx, number, link.SessionID, link.URL); err != nil {
		s.Sync.Failure(ctx, domain.ProviderStripe, "order", number, err)
		return link.URL
	}
	for _, o := range orders {
		o.PaymentSessionID = link.SessionID
		o.PaymentURL = link.URL
	}
	s.Sync.Success(ctx, domain.ProviderStripe, "order", number, "payment link created")
	return link.URL
}

func (s *shopService) ListClientOrders(ctx context.Context, clientID uuid.UUID) ([]*domain.Order, error) {
	return s.Orders.ListByClient(ctx, clientID)
}

func (s *shopService) ListOrders(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, businessErrorf("unknown order status %q", *status)
	}
	return s.Orders.List(ctx, status, page, pageSize)
}

func (s *shopService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, businessErrorf("unknown order status %q", status)
	}

	order, err := s.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, businessErrorf("cannot move an order from %s to %s", order.Status, status)
	}

	restock := status == domain.OrderCancelled && order.Status.Restocks()
	if err := s.Orders.UpdateStatus(ctx, id, order.Status, status, restock); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, businessErrorf("this order was just updated, please refresh and try again")
		}
		return nil, err
	}

	s.Logger.Info("Order status updated",
		zap.String("order_id", id.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
		zap.Bool("restocked", restock),
	)
	order.Status = status
	order.UpdatedAt = s.Now()
	return order, nil
}

// HandlePaymentCompleted marks a checkout session paid and credits loyalty
// points. A replay re-applies the award over the paid lines, which is a no-op
// once it has been recorded, so an award failure can be retried by the provider.
func (s *shopService) HandlePaymentCompleted(ctx context.Context, sessionID string) error {
	flipped, err := s.Orders.MarkPaidBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	lines, err := s.Orders.FindBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	var paid []*domain.Order
	var total int64
	for _, o := range lines {
		if o.Status == domain.OrderPending || o.Status == domain.OrderCancelled {
			continue
		}
		paid = append(paid, o)
		total += o.TotalCents
	}
	if len(paid) == 0 {
		s.Logger.Warn("Payment for unknown checkout session", zap.String("session_id", sessionID))
		return nil
	}

	number := paid[0].OrderNumber
	awarded, err := s.Loyalty.Award(ctx, paid[0].ClientID, domain.PointsForCents(total), domain.LoyaltyOrderPaid, number, "Shop order "+number)
	if err != nil {
		return fmt.Errorf("failed to award points for order %s: %w", number, err)
	}

	if len(flipped) == 0 {
		s.Logger.Debug("Payment already applied",
			zap.String("session_id", sessionID),
			zap.Bool("points_awarded", awarded),
		)
		return nil
	}

	s.Logger.Info("Order paid", zap.String("order_number", number), zap.Int64("total_cents", total))
	return nil
}

func (s *shopService) HandlePaymentEvent(ctx context.Context, event *payment.WebhookEvent) error {
	s.Sync.Inbound(ctx, domain.ProviderStripe, "order", event.OrderNumber, event.Type)

	switch event.Type {
	case payment.EventCheckoutCompleted:
		return s.HandlePaymentCompleted(ctx, event.SessionID)
	case payment.EventCheckoutExpired:
		s.Logger.Info("Checkout session expired",
			zap.String("session_id", event.SessionID),
			zap.String("order_number", event.OrderNumber),
		)
	default:
		s.Logger.Debug("Ignoring payment event", zap.String("type", event.Type))
	}
	return nil
}
