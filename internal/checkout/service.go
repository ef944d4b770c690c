package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/payment"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

// CustomerDetails is the contact block submitted with the cart.
type CustomerDetails struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,min=7,max=20"`
}

// Request is the order-creation payload. Cart items stay raw until the
// pricing decoder has checked their shape.
type Request struct {
	CartItems       json.RawMessage `json:"cartItems"`
	CustomerDetails CustomerDetails `json:"customerDetails"`
}

// Response is relayed to the client after the intent is created.
type Response struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	OrderID         string `json:"orderId"`
	Total           string `json:"total"`
	TotalMinor      int64  `json:"totalMinor"`
	Currency        string `json:"currency"`
}

// Pricer computes trusted totals and records rejected carts.
type Pricer interface {
	Price(ctx context.Context, lines []pricing.Line) (pricing.Total, error)
	Reject(ctx context.Context, err error)
}

// IntentCreator opens payment intents with the payment authority.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.IntentResponse, error)
}

// Service turns an untrusted cart into a priced order and a payment intent.
type Service struct {
	Pricing  Pricer
	Orders   order.Repository
	Payments IntentCreator
	Events   events.Emitter
	Abuse    *AbuseGuard
	Validate *validator.Validate
	Logger   zerolog.Logger
}

var (
	errInvalidOrder    = common.NewAppError("INVALID_ORDER", "invalid order", http.StatusBadRequest, nil)
	errInvalidCustomer = common.NewAppError("INVALID_CUSTOMER", "invalid customer details", http.StatusBadRequest, nil)
	errTryLater        = common.NewAppError("INTERNAL", "please try again later", http.StatusInternalServerError, nil)
	errTooMany         = common.NewAppError("RATE_LIMITED", "too many invalid orders, try again later", http.StatusTooManyRequests, nil)
	errUnauthorized    = common.NewAppError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized, nil)
)

// CreateIntent prices the cart, persists an awaiting_payment order and opens
// a payment intent for exactly the trusted total. Returned errors are
// *common.AppError values safe to show to the client.
func (s *Service) CreateIntent(ctx context.Context, userID string, req Request) (Response, error) {
	if s == nil || s.Pricing == nil || s.Orders == nil || s.Payments == nil {
		return Response{}, errTryLater
	}
	if userID == "" {
		return Response{}, errUnauthorized
	}
	if s.Abuse.Blocked(ctx, userID) {
		return Response{}, errTooMany
	}
	if err := s.validator().Struct(req.CustomerDetails); err != nil {
		s.Logger.Info().Err(err).Str("user_id", userID).Msg("customer details rejected")
		return Response{}, errInvalidCustomer
	}

	lines, err := pricing.DecodeLines(req.CartItems)
	if err != nil {
		s.Pricing.Reject(ctx, err)
		return Response{}, s.pricingFailure(ctx, userID, err)
	}
	total, err := s.Pricing.Price(ctx, lines)
	if err != nil {
		return Response{}, s.pricingFailure(ctx, userID, err)
	}

	customer := order.Customer{
		Name:  req.CustomerDetails.Name,
		Email: req.CustomerDetails.Email,
		Phone: req.CustomerDetails.Phone,
	}
	o := order.New(userID, customer, total)
	if err := s.Orders.Create(ctx, &o); err != nil {
		s.Logger.Error().Err(err).Str("user_id", userID).Msg("persist order")
		return Response{}, errTryLater
	}
	logger := s.Logger.With().Str("order_id", o.ID.String()).Str("user_id", userID).Logger()

	intent, err := s.Payments.CreateIntent(ctx, payment.IntentRequest{
		OrderID:  o.ID.String(),
		UserID:   userID,
		Amount:   total.Minor,
		Currency: total.Currency,
		Customer: payment.Customer{Name: customer.Name, Email: customer.Email, Phone: customer.Phone},
	})
	if err != nil {
		logger.Error().Err(err).Msg("create payment intent")
		s.cancel(ctx, o.ID, logger)
		return Response{}, errTryLater
	}
	if err := s.Orders.AttachIntent(ctx, o.ID, intent.Provider, intent.IntentID); err != nil {
		logger.Error().Err(err).Str("intent_id", intent.IntentID).Msg("attach payment intent")
		s.cancel(ctx, o.ID, logger)
		return Response{}, errTryLater
	}
	o.PaymentProvider, o.PaymentIntentID = intent.Provider, intent.IntentID

	if s.Events != nil {
		payload := events.OrderPayload{
			OrderID:    o.ID.String(),
			UserID:     userID,
			Status:     string(o.Status),
			TotalMinor: o.Total,
			Currency:   o.Currency,
			IntentID:   intent.IntentID,
		}
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
			logger.Warn().Err(err).Msg("emit order.created")
		}
	}
	logger.Info().Int64("total_minor", o.Total).Int("lines", len(o.Items)).Str("intent_id", intent.IntentID).Msg("checkout intent created")

	return Response{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.IntentID,
		OrderID:         o.ID.String(),
		Total:           catalog.MajorString(o.Total),
		TotalMinor:      o.Total,
		Currency:        o.Currency,
	}, nil
}

// cancel abandons an order whose intent could not be opened or recorded. An
// intent left behind on the provider expires unpaid and no webhook can match it.
func (s *Service) cancel(ctx context.Context, id uuid.UUID, logger zerolog.Logger) {
	if _, err := s.Orders.UpdateStatus(ctx, id, order.StatusCancelled); err != nil {
		logger.Warn().Err(err).Msg("cancel abandoned order")
	}
}

func (s *Service) pricingFailure(ctx context.Context, userID string, err error) error {
	if !pricing.IsInputError(err) {
		s.Logger.Error().Err(err).Msg("pricing unavailable")
		return errTryLater
	}
	if errors.Is(err, pricing.ErrUnknownItem) || errors.Is(err, pricing.ErrInvalidLineShape) {
		s.Abuse.Strike(ctx, userID)
	}
	return errInvalidOrder
}

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

func (s *Service) validator() *validator.Validate {
	if s.Validate != nil {
		return s.Validate
	}
	return defaultValidate
}
