package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-resto/internal/obs"
)

// Service wraps the configured Provider with tracing, metrics and a timeout.
type Service struct {
	Provider Provider
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// CreateIntent opens a payment intent for an already-priced order.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if s == nil || s.Provider == nil {
		return IntentResponse{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	start := time.Now()
	providerName := normaliseLabel(s.Provider.Name())
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", providerName),
			attribute.Float64("payment.intent.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.intent.result", result),
		)
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(providerName, result).Inc()
		}
	}()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Int64("payment.amount_minor", req.Amount),
	)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.Provider.CreateIntent(callCtx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			result = "invalid"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create intent failed")
		s.Logger.Error().Err(err).Str("order_id", req.OrderID).Str("provider", providerName).Msg("payment intent failed")
		return IntentResponse{}, err
	}
	result = "success"
	s.Logger.Info().
		Str("order_id", req.OrderID).
		Str("provider", providerName).
		Str("intent_id", resp.IntentID).
		Int64("amount_minor", req.Amount).
		Msg("payment intent created")
	return resp, nil
}

func normaliseLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
