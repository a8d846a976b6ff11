package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"studio-api/internal/config"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider uses Checkout Sessions as payment links
type StripeProvider struct {
	sc            *client.API
	currency      string
	successURL    string
	cancelURL     string
	webhookSecret string
}

func NewStripeProvider(cfg config.StripeConfig) *StripeProvider {
	return &StripeProvider{
		sc:            client.New(cfg.SecretKey, nil),
		currency:      cfg.Currency,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (p *StripeProvider) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	params := p.checkoutParams(req)
	params.Context = ctx

	s, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &Link{SessionID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) checkoutParams(req LinkRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.OrderNumber),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(p.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmountCents),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	params.AddMetadata("order_number", req.OrderNumber)
	return params
}

// ParseWebhook verifies the Stripe-Signature header and extracts the checkout session
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrInvalidWebhook)
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		out.SessionID = session.ID
		out.OrderNumber = session.Metadata["order_number"]
		if out.OrderNumber == "" {
			out.OrderNumber = session.ClientReferenceID
		}
	}
	return out, nil
}
