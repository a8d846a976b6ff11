package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"studio-api/internal/domain"
	"studio-api/internal/payment"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type shopFixture struct {
	service  ShopService
	products *mockProductRepository
	orders   *mockOrderRepository
	users    *mockUserRepository
	loyalty  *mockLoyaltyRepository
	links    *fakeLinks
	in       *integrations
	client   *domain.User
}

func newShopFixture() *shopFixture {
	return newShopFixtureWithLoyalty(func(l LoyaltyService) LoyaltyService { return l })
}

func newShopFixtureWithLoyalty(wrap func(LoyaltyService) LoyaltyService) *shopFixture {
	f := &shopFixture{
		products: newMockProductRepository(),
		users:    newMockUserRepository(),
		loyalty:  newMockLoyaltyRepository(),
		links:    &fakeLinks{},
		in:       newIntegrations(),
	}
	f.orders = newMockOrderRepository(f.products)
	f.client = f.users.add(domain.RoleClient)
	f.service = NewShopService(ShopServiceDeps{
		Products:   f.products,
		Orders:     f.orders,
		Users:      f.users,
		Loyalty:    wrap(NewLoyaltyService(f.loyalty, zap.NewNop())),
		Payments:   f.links,
		Dispatcher: f.in.dispatcher,
		Sync:       f.in.sync,
		Now:        func() time.Time { return time.Date(2030, 5, 4, 15, 0, 0, 0, time.UTC) },
		Logger:     zap.NewNop(),
	})
	return f
}

func businessMessage(t *testing.T, err error) string {
	t.Helper()
	be, ok := AsBusinessError(err)
	require.True(t, ok, "expected a business error, got %v", err)
	return be.Message
}

func TestValidateCartRules(t *testing.T) {
	products := newMockProductRepository()
	lashSerum := products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3500, 2)
	kit := products.add("Starter Kit", domain.PricingFixed, domain.AvailabilityOutOfStock, 9000, 0)
	custom := products.add("Custom Jewelry", domain.PricingContactForQuote, domain.AvailabilityMadeToOrder, 0, 0)
	hidden := products.add("Hidden Item", domain.PricingFixed, domain.AvailabilityInStock, 1000, 5)
	hidden.Published = false
	artPrint := products.add("Art Print", domain.PricingFixed, domain.AvailabilityMadeToOrder, 4000, 0)

	tests := []struct {
		name    string
		items   []domain.CartItem
		wantErr string
	}{
		{"empty cart", nil, "cart is empty"},
		{"zero quantity", []domain.CartItem{{ProductID: lashSerum.ID, Quantity: 0}}, "quantity must be at least 1"},
		{"unknown product", []domain.CartItem{{ProductID: uuid.New(), Quantity: 1}}, "a product in your cart is not available"},
		{"unpublished", []domain.CartItem{{ProductID: hidden.ID, Quantity: 1}}, "Hidden Item is not available"},
		{"out of stock", []domain.CartItem{{ProductID: kit.ID, Quantity: 1}}, "Starter Kit is out of stock"},
		{"quote only", []domain.CartItem{{ProductID: custom.ID, Quantity: 1}}, "Custom Jewelry requires a quote"},
		{"over stock", []domain.CartItem{{ProductID: lashSerum.ID, Quantity: 3}}, "Only 2 of Lash Serum available"},
		{"merged lines over stock", []domain.CartItem{
			{ProductID: lashSerum.ID, Quantity: 1},
			{ProductID: lashSerum.ID, Quantity: 2},
		}, "Only 2 of Lash Serum available"},
		{"quantity over limit", []domain.CartItem{{ProductID: artPrint.ID, Quantity: domain.MaxLineQuantity + 1}}, "quantity cannot exceed 1000"},
		{"merged lines over limit", []domain.CartItem{
			{ProductID: artPrint.ID, Quantity: domain.MaxLineQuantity},
			{ProductID: artPrint.ID, Quantity: 1},
		}, "quantity cannot exceed 1000"},
		{"made to order ignores stock", []domain.CartItem{{ProductID: artPrint.ID, Quantity: 10}}, ""},
		{"valid", []domain.CartItem{{ProductID: lashSerum.ID, Quantity: 2}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := validateCart(tt.items, products.products)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, lines)
				return
			}
			assert.Equal(t, tt.wantErr, businessMessage(t, err))
		})
	}
}

func TestProperty_ValidCartNeverExceedsStock(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("accepted carts fit within tracked stock", prop.ForAll(
		func(stock int, quantities []int) bool {
			products := newMockProductRepository()
			p := products.add("Brow Gel", domain.PricingFixed, domain.AvailabilityInStock, 1500, stock)

			items := make([]domain.CartItem, 0, len(quantities))
			requested := 0
			for _, q := range quantities {
				items = append(items, domain.CartItem{ProductID: p.ID, Quantity: q})
				requested += q
			}

			lines, err := validateCart(items, products.products)
			if len(items) == 0 {
				return err != nil
			}
			if requested > stock {
				return err != nil
			}
			return err == nil && len(lines) == 1 && lines[0].quantity == requested
		},
		gen.IntRange(0, 10),
		gen.SliceOf(gen.IntRange(1, 4)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPlaceOrderDecrementsStockAndCreatesPaymentLink(t *testing.T) {
	f := newShopFixture()
	ctx := context.Background()
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3500, 5)
	artPrint := f.products.add("Art Print", domain.PricingFixed, domain.AvailabilityMadeToOrder, 4000, 0)

	result, err := f.service.PlaceOrder(ctx, f.client.ID, PlaceOrderInput{
		Items: []domain.CartItem{
			{ProductID: serum.ID, Quantity: 2},
			{ProductID: artPrint.ID, Quantity: 1},
		},
		Fulfillment: domain.FulfillmentPickup,
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^TC-20300504-[0-9A-F]{6}$`), result.OrderNumber)
	assert.Len(t, result.Orders, 2)
	assert.Equal(t, "https://pay.example.com/"+result.OrderNumber, result.PaymentURL)
	assert.Equal(t, 3, f.products.products[serum.ID].StockCount)
	assert.Equal(t, 0, f.products.products[artPrint.ID].StockCount)

	require.Len(t, f.links.requests, 1)
	assert.Equal(t, f.client.Email, f.links.requests[0].CustomerEmail)
	assert.Len(t, f.links.requests[0].Items, 2)

	stored, err := f.orders.FindByNumber(ctx, result.OrderNumber)
	require.NoError(t, err)
	for _, o := range stored {
		assert.Equal(t, domain.OrderPending, o.Status)
		assert.Equal(t, "cs_"+result.OrderNumber, o.PaymentSessionID)
	}

	assert.Equal(t, []string{"order.placed"}, f.in.mailer.templates())
	require.Len(t, f.in.deals.deals, 1)
	assert.Equal(t, int64(11000), f.in.deals.deals[0].ValueCents)
}

func TestPlaceOrderKeepsOrdersWhenPaymentLinkFails(t *testing.T) {
	f := newShopFixture()
	f.links.err = errIntegrationDown
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3500, 5)

	result, err := f.service.PlaceOrder(context.Background(), f.client.ID, PlaceOrderInput{
		Items:       []domain.CartItem{{ProductID: serum.ID, Quantity: 1}},
		Fulfillment: domain.FulfillmentDelivery,
	})
	require.NoError(t, err)

	assert.Empty(t, result.PaymentURL)
	assert.Len(t, result.Orders, 1)
	assert.Equal(t, 4, f.products.products[serum.ID].StockCount)
	assert.Equal(t, 1, f.in.sync.failures(domain.ProviderStripe))
}

func TestPlaceOrderIntegrationsAreBestEffort(t *testing.T) {
	f := newShopFixture()
	f.in.mailer.err = errIntegrationDown
	f.in.deals.err = errIntegrationDown
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3500, 5)

	_, err := f.service.PlaceOrder(context.Background(), f.client.ID, PlaceOrderInput{
		Items:       []domain.CartItem{{ProductID: serum.ID, Quantity: 1}},
		Fulfillment: domain.FulfillmentPickup,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.in.sync.failures(domain.ProviderEmail))
	assert.Equal(t, 1, f.in.sync.failures(domain.ProviderCRM))
}

func TestPlaceOrderRejectionLeavesStockUntouched(t *testing.T) {
	f := newShopFixture()
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3500, 1)
	custom := f.products.add("Custom Jewelry", domain.PricingContactForQuote, domain.AvailabilityMadeToOrder, 0, 0)

	_, err := f.service.PlaceOrder(context.Background(), f.client.ID, PlaceOrderInput{
		Items: []domain.CartItem{
			{ProductID: serum.ID, Quantity: 1},
			{ProductID: custom.ID, Quantity: 1},
		},
		Fulfillment: domain.FulfillmentPickup,
	})
	assert.Equal(t, "Custom Jewelry requires a quote", businessMessage(t, err))
	assert.Equal(t, 1, f.products.products[serum.ID].StockCount)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.links.requests)
}

func TestHandlePaymentCompletedIsIdempotent(t *testing.T) {
	f := newShopFixture()
	ctx := context.Background()
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3550, 5)

	result, err := f.service.PlaceOrder(ctx, f.client.ID, PlaceOrderInput{
		Items:       []domain.CartItem{{ProductID: serum.ID, Quantity: 2}},
		Fulfillment: domain.FulfillmentPickup,
	})
	require.NoError(t, err)

	event := &payment.WebhookEvent{
		ID:          "evt_1",
		Type:        payment.EventCheckoutCompleted,
		SessionID:   "cs_" + result.OrderNumber,
		OrderNumber: result.OrderNumber,
	}
	require.NoError(t, f.service.HandlePaymentEvent(ctx, event))
	require.NoError(t, f.service.HandlePaymentEvent(ctx, event))

	balance, err := f.loyalty.Balance(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, 71, balance)

	orders, err := f.service.ListClientOrders(ctx, f.client.ID)
	require.NoError(t, err)
	for _, o := range orders {
		assert.Equal(t, domain.OrderPaid, o.Status)
	}
}

func TestHandlePaymentCompletedRetriesFailedAward(t *testing.T) {
	loyalty := &flakyLoyalty{failures: 1}
	f := newShopFixtureWithLoyalty(func(l LoyaltyService) LoyaltyService {
		loyalty.LoyaltyService = l
		return loyalty
	})
	ctx := context.Background()
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3550, 5)

	result, err := f.service.PlaceOrder(ctx, f.client.ID, PlaceOrderInput{
		Items:       []domain.CartItem{{ProductID: serum.ID, Quantity: 2}},
		Fulfillment: domain.FulfillmentPickup,
	})
	require.NoError(t, err)

	event := &payment.WebhookEvent{
		ID:          "evt_2",
		Type:        payment.EventCheckoutCompleted,
		SessionID:   "cs_" + result.OrderNumber,
		OrderNumber: result.OrderNumber,
	}

	// the provider sees the failure and redelivers
	require.ErrorIs(t, f.service.HandlePaymentEvent(ctx, event), errIntegrationDown)
	balance, err := f.loyalty.Balance(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	require.NoError(t, f.service.HandlePaymentEvent(ctx, event))
	require.NoError(t, f.service.HandlePaymentEvent(ctx, event))

	balance, err = f.loyalty.Balance(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, 71, balance)
}

func TestHandlePaymentCompletedIgnoresUnknownSession(t *testing.T) {
	f := newShopFixture()
	require.NoError(t, f.service.HandlePaymentCompleted(context.Background(), "cs_missing"))
	require.NoError(t, f.service.HandlePaymentCompleted(context.Background(), ""))
}

func TestUpdateOrderStatusRestocksOnCancel(t *testing.T) {
	f := newShopFixture()
	ctx := context.Background()
	serum := f.products.add("Lash Serum", domain.PricingFixed, domain.AvailabilityInStock, 3500, 5)

	result, err := f.service.PlaceOrder(ctx, f.client.ID, PlaceOrderInput{
		Items:       []domain.CartItem{{ProductID: serum.ID, Quantity: 3}},
		Fulfillment: domain.FulfillmentPickup,
	})
	require.NoError(t, err)
	order := result.Orders[0]
	assert.Equal(t, 2, f.products.products[serum.ID].StockCount)

	_, err = f.service.UpdateOrderStatus(ctx, order.ID, domain.OrderCompleted)
	assert.Equal(t, "cannot move an order from pending to completed", businessMessage(t, err))

	updated, err := f.service.UpdateOrderStatus(ctx, order.ID, domain.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, updated.Status)
	assert.Equal(t, 5, f.products.products[serum.ID].StockCount)

	_, err = f.service.UpdateOrderStatus(ctx, order.ID, domain.OrderPaid)
	assert.Error(t, err)
}

func TestGetProductHidesUnpublishedFromPublic(t *testing.T) {
	f := newShopFixture()
	p := f.products.add("Secret Palette", domain.PricingFixed, domain.AvailabilityInStock, 2000, 1)
	p.Published = false

	_, err := f.service.GetProduct(context.Background(), p.Slug, false)
	assert.Error(t, err)

	found, err := f.service.GetProduct(context.Background(), p.Slug, true)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
}

func TestCreateProductValidatesPricing(t *testing.T) {
	f := newShopFixture()
	ctx := context.Background()

	_, err := f.service.CreateProduct(ctx, ProductInput{
		Title:        "Lash Glue",
		Category:     "Aftercare",
		PricingType:  domain.PricingFixed,
		Availability: domain.AvailabilityInStock,
	})
	assert.Equal(t, "a priced product needs a price above zero", businessMessage(t, err))

	product, err := f.service.CreateProduct(ctx, ProductInput{
		Title:        "Bespoke Chain",
		Category:     "Jewelry",
		PricingType:  domain.PricingContactForQuote,
		Availability: domain.AvailabilityMadeToOrder,
		Published:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "bespoke-chain", product.Slug)
	assert.Equal(t, "jewelry", product.Category)
}
