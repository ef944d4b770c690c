package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventIntentCanceled  = "payment_intent.canceled"
)

// Stripe creates PaymentIntents and verifies Stripe webhooks.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// NewStripe builds a provider using httpClient for API calls.
func NewStripe(secretKey, webhookSecret string, httpClient *http.Client) *Stripe {
	return NewStripeWithBackends(secretKey, webhookSecret, stripe.NewBackends(httpClient))
}

// NewStripeWithBackends builds a provider against explicit backends.
func NewStripeWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(secretKey, backends), webhookSecret: webhookSecret}
}

func (s *Stripe) Name() string { return "stripe" }

// CreateIntent opens a PaymentIntent for the trusted amount. The order ID is
// the idempotency key so client retries never open a second intent.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if err := req.validate(); err != nil {
		return IntentResponse{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.OrderID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("customer_name", truncate(req.Customer.Name, 100))
	params.AddMetadata("customer_email", req.Customer.Email)
	params.AddMetadata("customer_phone", req.Customer.Phone)
	params.AddMetadata("user_id", req.UserID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return IntentResponse{Provider: s.Name(), IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// VerifyWebhook checks the Stripe-Signature header and normalises the event.
func (s *Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	if s.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normaliseEvent(ev)
}

func normaliseEvent(ev stripe.Event) (WebhookEvent, error) {
	out := WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case eventIntentSucceeded:
		out.Outcome = OutcomeSucceeded
	case eventIntentFailed, eventIntentCanceled:
		out.Outcome = OutcomeFailed
	default:
		return out, nil
	}
	if ev.Data == nil {
		return out, fmt.Errorf("stripe: event %s has no data", ev.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return out, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	out.Amount = pi.Amount
	out.Currency = strings.ToUpper(string(pi.Currency))
	out.OrderID = pi.Metadata["order_id"]
	return out, nil
}
