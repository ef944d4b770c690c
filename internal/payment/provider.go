package payment

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidRequest is returned for intent requests that cannot be sent upstream.
	ErrInvalidRequest = errors.New("payment: invalid intent request")
)

// Customer carries the contact details forwarded to the payment authority.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// IntentRequest captures the information required to open a payment intent with a provider.
// Amount is always the server-computed total in minor units.
type IntentRequest struct {
	OrderID  string
	UserID   string
	Amount   int64
	Currency string
	Customer Customer
}

// IntentResponse represents the information returned to the client after an intent is created.
type IntentResponse struct {
	Provider     string
	IntentID     string
	ClientSecret string
}

// Outcome is the order-level meaning of a webhook event.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// WebhookEvent contains the normalised data extracted from a webhook notification after signature verification.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	OrderID  string
	Amount   int64
	Currency string
	Outcome  Outcome
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error)
}

func (r IntentRequest) validate() error {
	switch {
	case r.OrderID == "":
		return errors.Join(ErrInvalidRequest, errors.New("order id is required"))
	case r.Amount <= 0:
		return errors.Join(ErrInvalidRequest, errors.New("amount must be positive"))
	case r.Currency == "":
		return errors.Join(ErrInvalidRequest, errors.New("currency is required"))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
