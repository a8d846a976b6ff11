package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studio-api/internal/domain"
	"studio-api/internal/middleware"
	"studio-api/internal/payment"
	"studio-api/internal/repository"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var studioTZ, _ = time.LoadLocation("America/Los_Angeles")

type stubBookings struct {
	err        error
	booking    *domain.Booking
	slotsDate  time.Time
	slots      []time.Time
	scheduleOf uuid.UUID
	checkInURL string
}

func (s *stubBookings) AvailableSlots(_ context.Context, _, _ uuid.UUID, date time.Time) ([]time.Time, error) {
	s.slotsDate = date
	return s.slots, s.err
}

func (s *stubBookings) CreateBooking(_ context.Context, clientID uuid.UUID, in service.CreateBookingInput) (*domain.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Booking{ID: uuid.New(), ClientID: clientID, ServiceID: in.ServiceID, StaffID: in.StaffID, StartsAt: in.StartsAt, Status: domain.BookingPending}, nil
}

func (s *stubBookings) CancelBooking(context.Context, service.Actor, uuid.UUID, string) (*domain.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) UpdateStatus(_ context.Context, _ uuid.UUID, status domain.BookingStatus) (*domain.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Booking{Status: status}, nil
}

func (s *stubBookings) GetBooking(context.Context, service.Actor, uuid.UUID) (*domain.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) ListClientBookings(context.Context, uuid.UUID, bool) ([]*domain.Booking, error) {
	return []*domain.Booking{}, s.err
}

func (s *stubBookings) ListStaffSchedule(_ context.Context, staffID uuid.UUID, _, _ time.Time) ([]*domain.Booking, error) {
	s.scheduleOf = staffID
	return []*domain.Booking{}, s.err
}

func (s *stubBookings) ListBookings(context.Context, domain.BookingFilter) ([]*domain.Booking, int, error) {
	return []*domain.Booking{}, 0, s.err
}

func (s *stubBookings) CheckInURL(context.Context, service.Actor, uuid.UUID) (string, error) {
	return s.checkInURL, s.err
}

func (s *stubBookings) CheckIn(context.Context, string) (*domain.Booking, error) {
	return s.booking, s.err
}

type stubShop struct {
	err    error
	result *service.PlaceOrderResult
	events []*payment.WebhookEvent
}

func (s *stubShop) ListProducts(context.Context, repository.ProductFilter) ([]*domain.Product, int, error) {
	return []*domain.Product{}, 0, s.err
}

func (s *stubShop) GetProduct(context.Context, string, bool) (*domain.Product, error) {
	return nil, repository.ErrProductNotFound
}

func (s *stubShop) CreateProduct(context.Context, service.ProductInput) (*domain.Product, error) {
	return nil, s.err
}

func (s *stubShop) UpdateProduct(context.Context, uuid.UUID, service.ProductInput) (*domain.Product, error) {
	return nil, s.err
}

func (s *stubShop) PlaceOrder(context.Context, uuid.UUID, service.PlaceOrderInput) (*service.PlaceOrderResult, error) {
	return s.result, s.err
}

func (s *stubShop) ListClientOrders(context.Context, uuid.UUID) ([]*domain.Order, error) {
	return []*domain.Order{}, s.err
}

func (s *stubShop) ListOrders(context.Context, *domain.OrderStatus, int, int) ([]*domain.Order, int, error) {
	return []*domain.Order{}, 0, s.err
}

func (s *stubShop) UpdateOrderStatus(context.Context, uuid.UUID, domain.OrderStatus) (*domain.Order, error) {
	return nil, s.err
}

func (s *stubShop) HandlePaymentCompleted(context.Context, string) error {
	return s.err
}

func (s *stubShop) HandlePaymentEvent(_ context.Context, event *payment.WebhookEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type stubVerifier struct{}

func (stubVerifier) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if signature != "t=1,v1=good" {
		return nil, fmt.Errorf("%w: bad signature", payment.ErrInvalidWebhook)
	}
	return &payment.WebhookEvent{ID: "evt_1", Type: payment.EventCheckoutCompleted, SessionID: "cs_1", OrderNumber: "TC-20300311-ABCDEF"}, nil
}

func testGuards(logger *zap.Logger) Guards {
	return Guards{
		Auth:  middleware.AuthMiddleware(testJWTSecret, logger),
		Staff: middleware.RequireStaff(logger),
		Admin: middleware.RequireAdmin(logger),
	}
}

func tokenFor(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": id.String(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func serve(router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, path, &payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func bookingRouter(bookings *stubBookings) chi.Router {
	logger := zap.NewNop()
	r := chi.NewRouter()
	NewBookingHandler(bookings, studioTZ, logger).RegisterRoutes(r, testGuards(logger))
	NewCatalogHandler(nil, bookings, studioTZ, logger).RegisterRoutes(r, testGuards(logger))
	return r
}

func TestCreateBookingRuleViolationIsUnprocessable(t *testing.T) {
	bookings := &stubBookings{err: &service.BusinessError{Message: "the selected time is no longer available"}}
	router := bookingRouter(bookings)

	w := serve(router, http.MethodPost, "/api/bookings", tokenFor(t, uuid.New(), domain.RoleClient), CreateBookingRequest{
		ServiceID: uuid.New(),
		StaffID:   uuid.New(),
		StartsAt:  time.Date(2030, 3, 12, 10, 0, 0, 0, studioTZ),
	})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body middleware.FailureResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "the selected time is no longer available", body.Error)
}

func TestCreateBookingRequiresServiceAndStaff(t *testing.T) {
	router := bookingRouter(&stubBookings{})

	w := serve(router, http.MethodPost, "/api/bookings", tokenFor(t, uuid.New(), domain.RoleClient), map[string]string{
		"starts_at": "2030-03-12T10:00:00-07:00",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaffRoutesAreGatedByRole(t *testing.T) {
	bookings := &stubBookings{}
	router := bookingRouter(bookings)

	tests := []struct {
		role string
		want int
	}{
		{domain.RoleClient, http.StatusForbidden},
		{domain.RoleAssistant, http.StatusOK},
		{domain.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		id := uuid.New()
		w := serve(router, http.MethodGet, "/api/staff/schedule?from=2030-03-11&to=2030-03-17", tokenFor(t, id, tt.role), nil)
		assert.Equal(t, tt.want, w.Code, tt.role)
		if tt.want == http.StatusOK {
			assert.Equal(t, id, bookings.scheduleOf, "schedule defaults to the caller")
		}
	}

	w := serve(router, http.MethodGet, "/api/admin/bookings", tokenFor(t, uuid.New(), domain.RoleAssistant), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAvailableSlotsParsesDateInStudioZone(t *testing.T) {
	bookings := &stubBookings{slots: []time.Time{}}
	router := bookingRouter(bookings)
	path := "/api/services/" + uuid.NewString() + "/slots"

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, path+"?date=2030-03-12", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, path+"?staff_id="+uuid.NewString()+"&date=12/03/2030", "", nil).Code)

	w := serve(router, http.MethodGet, path+"?staff_id="+uuid.NewString()+"&date=2030-03-12", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2030, 3, 12, 0, 0, 0, 0, studioTZ), bookings.slotsDate)
}

func TestCheckInQRServesPNG(t *testing.T) {
	router := bookingRouter(&stubBookings{checkInURL: "https://studio.example.com/checkin?token=abc.def"})

	w := serve(router, http.MethodGet, "/api/bookings/"+uuid.NewString()+"/qr", tokenFor(t, uuid.New(), domain.RoleClient), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestForeignBookingLooksMissing(t *testing.T) {
	router := bookingRouter(&stubBookings{err: repository.ErrBookingNotFound})

	w := serve(router, http.MethodGet, "/api/bookings/"+uuid.NewString(), tokenFor(t, uuid.New(), domain.RoleClient), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/api/bookings/not-a-uuid", tokenFor(t, uuid.New(), domain.RoleClient), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func shopRouter(shop *stubShop) chi.Router {
	logger := zap.NewNop()
	r := chi.NewRouter()
	NewShopHandler(shop, stubVerifier{}, logger).RegisterRoutes(r, testGuards(logger))
	return r
}

func TestPlaceOrderReturnsPaymentLink(t *testing.T) {
	shop := &stubShop{result: &service.PlaceOrderResult{
		Orders:      []*domain.Order{{OrderNumber: "TC-20300311-ABCDEF"}},
		OrderNumber: "TC-20300311-ABCDEF",
		PaymentURL:  "https://pay.example.com/TC-20300311-ABCDEF",
	}}
	router := shopRouter(shop)

	w := serve(router, http.MethodPost, "/api/shop/orders", tokenFor(t, uuid.New(), domain.RoleClient), service.PlaceOrderInput{
		Items:       []domain.CartItem{{ProductID: uuid.New(), Quantity: 2}},
		Fulfillment: domain.FulfillmentPickup,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result service.PlaceOrderResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "https://pay.example.com/TC-20300311-ABCDEF", result.PaymentURL)
}

func TestPlaceOrderRejectsUnknownFulfillment(t *testing.T) {
	router := shopRouter(&stubShop{})

	w := serve(router, http.MethodPost, "/api/shop/orders", tokenFor(t, uuid.New(), domain.RoleClient), map[string]interface{}{
		"items":              []map[string]interface{}{{"product_id": uuid.NewString(), "quantity": 1}},
		"fulfillment_method": "drone",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrderRejectsHugeQuantity(t *testing.T) {
	shop := &stubShop{}
	router := shopRouter(shop)

	for _, quantity := range []int64{domain.MaxLineQuantity + 1, 1 << 40} {
		w := serve(router, http.MethodPost, "/api/shop/orders", tokenFor(t, uuid.New(), domain.RoleClient), map[string]interface{}{
			"items":              []map[string]interface{}{{"product_id": uuid.NewString(), "quantity": quantity}},
			"fulfillment_method": "pickup",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, "quantity %d", quantity)
	}
}

func TestStripeWebhookVerifiesSignature(t *testing.T) {
	shop := &stubShop{}
	router := shopRouter(shop)

	send := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
		req.Header.Set("Stripe-Signature", signature)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, send("t=1,v1=forged"))
	assert.Empty(t, shop.events)

	assert.Equal(t, http.StatusOK, send("t=1,v1=good"))
	require.Len(t, shop.events, 1)
	assert.Equal(t, "cs_1", shop.events[0].SessionID)

	shop.err = errors.New("database unavailable")
	assert.Equal(t, http.StatusInternalServerError, send("t=1,v1=good"))
}

func TestRespondWithServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.BusinessError{Message: "cart is empty"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("failed to get user: %w", repository.ErrUserNotFound), http.StatusNotFound},
		{repository.ErrProductAlreadyExists, http.StatusConflict},
		{repository.ErrSlotTaken, http.StatusConflict},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{payment.ErrInvalidWebhook, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		respondWithServiceError(w, zap.NewNop(), tt.err, "request failed")
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}
