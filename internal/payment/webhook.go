package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/security"
)

const maxWebhookBody = 64 << 10

// Locker serialises work on one payment intent across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Webhook handles payment provider callbacks, including signature verification and settlement.
type Webhook struct {
	Provider  Provider
	Orders    order.Repository
	Events    events.Emitter
	Replay    *redis.Client
	ReplayTTL time.Duration
	Locker    Locker
	Logger    zerolog.Logger
	Alerts    security.Alerter
}

var (
	errAmountMismatch = errors.New("amount mismatch")
	errOrderMissing   = errors.New("order not found for intent")
)

type settlement struct {
	order   order.Order
	topics  []string
	changed bool
}

// Handle processes webhook callbacks for the configured payment provider.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerName := normaliseLabel(h.Provider.Name())
	result := "error"
	defer func() {
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(providerName, result).Inc()
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	ev, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			result = "invalid_signature"
			ip := common.ClientIP(r)
			h.Logger.Warn().Str("security", security.AlertWebhookSignature).Str("ip", ip).Msg("webhook signature rejected")
			security.Raise(r.Context(), h.Alerts, security.Alert{
				Type:     security.AlertWebhookSignature,
				Severity: security.SeverityHigh,
				Title:    "payment webhook signature rejected",
				IP:       ip,
				Metadata: security.MetadataJSON(map[string]any{"provider": providerName}),
			})
			common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "unable to parse event", nil)
		return
	}
	if ev.Outcome == OutcomeIgnored {
		result = "ignored"
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	ctx := r.Context()
	replayKey := fmt.Sprintf("wh:%s:%s", providerName, ev.ID)
	if h.Replay != nil && ev.ID != "" {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = 72 * time.Hour
		}
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", ttl).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			result = "duplicate"
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}

	var st settlement
	apply := func(ctx context.Context) error {
		var err error
		st, err = h.settle(ctx, ev)
		return err
	}
	if h.Locker != nil {
		err = h.Locker.WithLock(ctx, "lock:payment:"+ev.IntentID, 30*time.Second, apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		logger := h.Logger.With().Str("event_id", ev.ID).Str("intent_id", ev.IntentID).Logger()
		switch {
		case errors.Is(err, errAmountMismatch):
			result = "amount_mismatch"
			logger.Error().Str("security", security.AlertAmountMismatch).Int64("amount_minor", ev.Amount).Err(err).Msg("webhook amount does not match order")
			security.Raise(ctx, h.Alerts, security.Alert{
				Type:        security.AlertAmountMismatch,
				Severity:    security.SeverityCritical,
				Title:       "paid amount does not match the order total",
				Description: err.Error(),
				Metadata: security.MetadataJSON(map[string]any{
					"provider":     providerName,
					"event_id":     ev.ID,
					"intent_id":    ev.IntentID,
					"amount_minor": ev.Amount,
					"currency":     ev.Currency,
				}),
			})
			common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		case errors.Is(err, errOrderMissing):
			result = "order_missing"
			h.forgetReplay(replayKey)
			logger.Warn().Err(err).Msg("webhook for unknown intent")
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		default:
			h.forgetReplay(replayKey)
			logger.Error().Err(err).Msg("webhook settlement failed")
			common.JSONError(w, http.StatusInternalServerError, "SETTLEMENT_FAILED", "unable to process event", nil)
		}
		return
	}

	if st.changed {
		h.emit(ctx, st)
	}
	result = "processed"
	common.JSON(w, http.StatusOK, map[string]any{"received": true, "status": st.order.Status})
}

func (h Webhook) settle(ctx context.Context, ev WebhookEvent) (settlement, error) {
	o, err := h.Orders.GetByIntent(ctx, ev.IntentID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return settlement{}, errOrderMissing
		}
		return settlement{}, err
	}
	st := settlement{order: o}
	if o.Status != order.StatusAwaitingPayment {
		return st, nil
	}
	switch ev.Outcome {
	case OutcomeSucceeded:
		if ev.Amount != o.Total || (ev.Currency != "" && ev.Currency != o.Currency) {
			return st, fmt.Errorf("%w: got %d %s, order %s expects %d %s",
				errAmountMismatch, ev.Amount, ev.Currency, o.ID, o.Total, o.Currency)
		}
		if _, err := h.Orders.UpdateStatus(ctx, o.ID, order.StatusPlaced); err != nil {
			return st, err
		}
		st.order.Status = order.StatusPlaced
		st.topics = []string{events.TopicOrderPlaced}
	case OutcomeFailed:
		if _, err := h.Orders.UpdateStatus(ctx, o.ID, order.StatusCancelled); err != nil {
			return st, err
		}
		st.order.Status = order.StatusCancelled
		st.topics = []string{events.TopicPaymentFailed, events.TopicOrderCancelled}
	}
	st.changed = true
	return st, nil
}

func (h Webhook) emit(ctx context.Context, st settlement) {
	if h.Events == nil {
		return
	}
	o := st.order
	payload := events.OrderPayload{
		OrderID:       o.ID.String(),
		UserID:        o.UserID,
		Status:        string(o.Status),
		PreviousState: string(order.StatusAwaitingPayment),
		TotalMinor:    o.Total,
		Currency:      o.Currency,
		IntentID:      o.PaymentIntentID,
	}
	for _, topic := range st.topics {
		if _, err := h.Events.Emit(ctx, topic, o.ID, payload); err != nil {
			h.Logger.Warn().Err(err).Str("topic", topic).Str("order_id", o.ID.String()).Msg("emit payment event")
		}
	}
}

func (h Webhook) forgetReplay(key string) {
	if h.Replay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = h.Replay.Del(ctx, key).Err()
}
