package transport

import (
	"io"
	"net/http"
	"strings"

	"studio-api/internal/domain"
	"studio-api/internal/middleware"
	"studio-api/internal/payment"
	"studio-api/internal/repository"
	"studio-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxWebhookBytes matches the payload ceiling Stripe documents for webhooks
const maxWebhookBytes = 65536

type orderStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=pending paid ready shipped completed cancelled"`
}

type ShopHandler struct {
	shop     service.ShopService
	webhooks payment.WebhookVerifier
	logger   *zap.Logger
}

func NewShopHandler(shop service.ShopService, webhooks payment.WebhookVerifier, logger *zap.Logger) *ShopHandler {
	return &ShopHandler{shop: shop, webhooks: webhooks, logger: logger}
}

func (h *ShopHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Get("/api/shop/products", h.ListProducts)
	r.Get("/api/shop/products/{slug}", h.GetProduct)
	r.Post("/api/webhooks/stripe", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(guards.Auth)
		r.Post("/api/shop/orders", h.PlaceOrder)
		r.Get("/api/shop/orders/mine", h.ListMyOrders)

		r.Group(func(r chi.Router) {
			r.Use(guards.Admin)
			r.Get("/api/admin/products", h.ListAllProducts)
			r.Post("/api/admin/products", h.CreateProduct)
			r.Put("/api/admin/products/{id}", h.UpdateProduct)
			r.Get("/api/admin/orders", h.ListOrders)
			r.Patch("/api/admin/orders/{id}/status", h.UpdateOrderStatus)
		})
	})
}

func productFilter(r *http.Request, publishedOnly bool) repository.ProductFilter {
	q := r.URL.Query()
	page, pageSize := pageParams(r)
	return repository.ProductFilter{
		Category:      q.Get("category"),
		Search:        q.Get("search"),
		PublishedOnly: publishedOnly,
		Page:          page,
		PageSize:      pageSize,
		SortBy:        q.Get("sort_by"),
		SortOrder:     repository.SortOrder(strings.ToUpper(q.Get("sort_order"))),
	}
}

func (h *ShopHandler) listProducts(w http.ResponseWriter, r *http.Request, filter repository.ProductFilter) {
	products, total, err := h.shop.ListProducts(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PageResponse{
		Items:    products,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func (h *ShopHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, productFilter(r, true))
}

func (h *ShopHandler) ListAllProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, productFilter(r, false))
}

func (h *ShopHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.shop.GetProduct(r.Context(), chi.URLParam(r, "slug"), false)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ShopHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input service.ProductInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	product, err := h.shop.CreateProduct(r.Context(), input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to create product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ShopHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var input service.ProductInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	product, err := h.shop.UpdateProduct(r.Context(), id, input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ShopHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var input service.PlaceOrderInput
	if !decodeRequest(w, r, h.logger, &input) {
		return
	}

	result, err := h.shop.PlaceOrder(r.Context(), actor.ID, input)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to place order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, result)
}

func (h *ShopHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	orders, err := h.shop.ListClientOrders(r.Context(), actor.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list orders")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *ShopHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.OrderStatus(raw)
		if !s.Valid() {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &s
	}
	page, pageSize := pageParams(r)

	orders, total, err := h.shop.ListOrders(r.Context(), status, page, pageSize)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to list orders")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PageResponse{
		Items:    orders,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (h *ShopHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req orderStatusRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	order, err := h.shop.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		respondWithServiceError(w, h.logger, err, "failed to update order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// StripeWebhook verifies and applies a payment provider callback. Verified
// events that fail to apply get a 500 so the provider retries them.
func (h *ShopHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "could not read webhook body")
		return
	}

	event, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("Rejected payment webhook", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid webhook")
		return
	}

	if err := h.shop.HandlePaymentEvent(r.Context(), event); err != nil {
		h.logger.Error("Failed to apply payment webhook",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
