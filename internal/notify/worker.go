package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
)

// SMSSender sends a single text message.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// KitchenSender posts a ticket for a paid order.
type KitchenSender interface {
	Send(o order.Order) error
}

// Handlers processes notification tasks on the worker. Each channel is its own
// task so a retry never repeats a delivery that already succeeded.
type Handlers struct {
	Orders          order.Repository
	Email           common.EmailSender
	SMS             SMSSender
	Kitchen         KitchenSender
	TrackingBaseURL string
	Logger          zerolog.Logger
}

// Register attaches the task handlers to mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOrderConfirmation, h.HandleOrderConfirmation)
	mux.HandleFunc(TypeOrderSMS, h.HandleOrderSMS)
	mux.HandleFunc(TypeKitchenTicket, h.HandleKitchenTicket)
}

// HandleOrderConfirmation emails the customer their receipt.
func (h *Handlers) HandleOrderConfirmation(ctx context.Context, t *asynq.Task) error {
	if h.Email == nil {
		return nil
	}
	o, err := h.loadOrder(ctx, t)
	if err != nil {
		return err
	}
	if o.Customer.Email == "" {
		return nil
	}
	subject, html, err := RenderConfirmation(o, h.trackingURL(o))
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	start := time.Now()
	err = h.Email.Send(ctx, o.Customer.Email, subject, html)
	observe("email", start, err)
	if err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	h.Logger.Info().Str("order_id", o.ID.String()).Msg("confirmation email sent")
	return nil
}

// HandleOrderSMS texts the customer. Unusable phone numbers are logged and dropped.
func (h *Handlers) HandleOrderSMS(ctx context.Context, t *asynq.Task) error {
	if h.SMS == nil {
		return nil
	}
	o, err := h.loadOrder(ctx, t)
	if err != nil {
		return err
	}
	if o.Customer.Phone == "" {
		return nil
	}
	start := time.Now()
	err = h.SMS.Send(ctx, o.Customer.Phone, ConfirmationSMS(o, h.trackingURL(o)))
	observe("sms", start, err)
	if errors.Is(err, ErrInvalidPhone) {
		h.Logger.Warn().Str("order_id", o.ID.String()).Msg("skip sms: invalid phone number")
		return nil
	}
	if err != nil {
		return fmt.Errorf("send confirmation sms: %w", err)
	}
	return nil
}

// HandleKitchenTicket posts the order to the kitchen chat.
func (h *Handlers) HandleKitchenTicket(ctx context.Context, t *asynq.Task) error {
	if h.Kitchen == nil {
		return nil
	}
	o, err := h.loadOrder(ctx, t)
	if err != nil {
		return err
	}
	start := time.Now()
	err = h.Kitchen.Send(o)
	observe("telegram", start, err)
	if err != nil {
		return fmt.Errorf("send kitchen ticket: %w", err)
	}
	return nil
}

func (h *Handlers) loadOrder(ctx context.Context, t *asynq.Task) (order.Order, error) {
	p, err := ParsePayload(t)
	if err != nil {
		return order.Order{}, err
	}
	id, err := uuid.Parse(p.OrderID)
	if err != nil {
		return order.Order{}, fmt.Errorf("invalid order id %q: %w", p.OrderID, asynq.SkipRetry)
	}
	o, err := h.Orders.Get(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		return order.Order{}, fmt.Errorf("order %s: %w: %w", id, err, asynq.SkipRetry)
	}
	return o, err
}

func (h *Handlers) trackingURL(o order.Order) string {
	if h.TrackingBaseURL == "" {
		return ""
	}
	return h.TrackingBaseURL + "/orders/" + o.ID.String()
}

func observe(channel string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	obs.ObserveNotification(channel, result, float64(time.Since(start).Milliseconds()))
}
