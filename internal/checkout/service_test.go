package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/checkout"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/payment"
	"github.com/noah-isme/backend-resto/internal/pricing"
	"github.com/noah-isme/backend-resto/internal/ratelimit"
	"github.com/noah-isme/backend-resto/internal/security"
)

type recordingEmitter struct {
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic string, id uuid.UUID, _ any) (events.Event, error) {
	r.topics = append(r.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: id}, nil
}

type capturingPayments struct {
	requests []payment.IntentRequest
	err      error
}

func (c *capturingPayments) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.IntentResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return payment.IntentResponse{}, c.err
	}
	return payment.Stub{}.CreateIntent(ctx, req)
}

type recordingAlerts struct {
	raised []security.Alert
}

func (r *recordingAlerts) Raise(_ context.Context, a security.Alert) {
	r.raised = append(r.raised, a)
}

func (r *recordingAlerts) types() []string {
	out := make([]string, 0, len(r.raised))
	for _, a := range r.raised {
		out = append(out, a.Type)
	}
	return out
}

type fixture struct {
	svc      *checkout.Service
	orders   *order.MemoryStore
	payments *capturingPayments
	emitter  *recordingEmitter
	holder   *catalog.Holder
	alerts   *recordingAlerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.New("test-1", "INR", []catalog.Entry{
		{Category: "Desserts", Name: "Gulab Jamun", Price: 42000},
		{Category: "Breads", Name: "Butter Naan", Price: 33500},
	})
	require.NoError(t, err)
	holder := catalog.NewHolder(nil, zerolog.Nop())
	holder.Set(cat)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		orders:   order.NewMemoryStore(),
		payments: &capturingPayments{},
		emitter:  &recordingEmitter{},
		holder:   holder,
		alerts:   &recordingAlerts{},
	}
	f.svc = &checkout.Service{
		Pricing:  pricing.Validator{Catalog: holder, Logger: zerolog.Nop(), Alerts: f.alerts},
		Orders:   f.orders,
		Payments: f.payments,
		Events:   f.emitter,
		Abuse: &checkout.AbuseGuard{
			Counter:    ratelimit.Limiter{Client: rdb, Prefix: "test:"},
			Window:     time.Minute,
			MaxStrikes: 2,
			Logger:     zerolog.Nop(),
			Alerts:     f.alerts,
		},
		Logger: zerolog.Nop(),
	}
	return f
}

func request(items string) checkout.Request {
	return checkout.Request{
		CartItems:       json.RawMessage(items),
		CustomerDetails: checkout.CustomerDetails{Name: "Asha", Email: "asha@example.com", Phone: "+919800000000"},
	}
}

func appErr(t *testing.T, err error) *common.AppError {
	t.Helper()
	var ae *common.AppError
	require.True(t, errors.As(err, &ae), "expected AppError, got %v", err)
	return ae
}

func TestCreateIntentPricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.CreateIntent(context.Background(), "user-1",
		request(`[{"name":"Gulab Jamun","quantity":3,"price":1},{"name":"  butter   NAAN ","quantity":1}]`))
	require.NoError(t, err)
	require.Equal(t, "1595.00", resp.Total)
	require.EqualValues(t, 159500, resp.TotalMinor)
	require.Equal(t, "INR", resp.Currency)
	require.NotEmpty(t, resp.ClientSecret)

	require.Len(t, f.payments.requests, 1)
	require.EqualValues(t, 159500, f.payments.requests[0].Amount)
	require.Equal(t, resp.OrderID, f.payments.requests[0].OrderID)
	require.Equal(t, "user-1", f.payments.requests[0].UserID)

	o, err := f.orders.Get(context.Background(), uuid.MustParse(resp.OrderID))
	require.NoError(t, err)
	require.Equal(t, order.StatusAwaitingPayment, o.Status)
	require.Equal(t, resp.PaymentIntentID, o.PaymentIntentID)
	require.Equal(t, "test-1", o.CatalogVersion)
	require.Len(t, o.Items, 2)
	require.Equal(t, []string{events.TopicOrderCreated}, f.emitter.topics)
}

func TestCreateIntentRejectsInvalidCarts(t *testing.T) {
	cases := map[string]string{
		"empty":        `[]`,
		"not array":    `{"name":"Gulab Jamun"}`,
		"zero qty":     `[{"name":"Gulab Jamun","quantity":0}]`,
		"fraction qty": `[{"name":"Gulab Jamun","quantity":1.5}]`,
		"too many":     `[{"name":"Gulab Jamun","quantity":101}]`,
		"unknown":      `[{"name":"Lobster Thermidor","quantity":1}]`,
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateIntent(context.Background(), "user-1", request(items))
			ae := appErr(t, err)
			require.Equal(t, http.StatusBadRequest, ae.HTTPStatus)
			require.Equal(t, "invalid order", ae.Message)
			require.Empty(t, f.payments.requests)
			orders, _, _ := f.orders.ListAll(context.Background(), order.Filter{})
			require.Empty(t, orders)
		})
	}
}

func TestCreateIntentValidatesCustomer(t *testing.T) {
	f := newFixture(t)
	req := request(`[{"name":"Gulab Jamun","quantity":1}]`)
	req.CustomerDetails.Email = "not-an-email"
	_, err := f.svc.CreateIntent(context.Background(), "user-1", req)
	require.Equal(t, "INVALID_CUSTOMER", appErr(t, err).Code)

	req = request(`[{"name":"Gulab Jamun","quantity":1}]`)
	req.CustomerDetails.Name = ""
	_, err = f.svc.CreateIntent(context.Background(), "user-1", req)
	require.Equal(t, "INVALID_CUSTOMER", appErr(t, err).Code)
}

func TestCreateIntentBlocksRepeatedUnknownItems(t *testing.T) {
	f := newFixture(t)
	bad := request(`[{"name":"Lobster Thermidor","quantity":1}]`)
	for i := 0; i < 2; i++ {
		_, err := f.svc.CreateIntent(context.Background(), "user-1", bad)
		require.Equal(t, http.StatusBadRequest, appErr(t, err).HTTPStatus)
	}
	_, err := f.svc.CreateIntent(context.Background(), "user-1", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	require.Equal(t, http.StatusTooManyRequests, appErr(t, err).HTTPStatus)

	_, err = f.svc.CreateIntent(context.Background(), "user-2", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	require.NoError(t, err)

	require.Equal(t, []string{
		security.AlertUnknownMenuItem,
		security.AlertUnknownMenuItem,
		security.AlertCheckoutBlocked,
	}, f.alerts.types())
	require.Equal(t, "user-1", f.alerts.raised[2].UserID)
	require.Equal(t, security.SeverityHigh, f.alerts.raised[2].Severity)
	require.JSONEq(t, `{"item_name":"Lobster Thermidor","line":0}`, string(f.alerts.raised[0].Metadata))
}

func TestCreateIntentQuantityErrorsDoNotStrike(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateIntent(context.Background(), "user-1", request(`[{"name":"Gulab Jamun","quantity":0}]`))
		require.Equal(t, http.StatusBadRequest, appErr(t, err).HTTPStatus)
	}
	_, err := f.svc.CreateIntent(context.Background(), "user-1", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	require.NoError(t, err)
	require.Empty(t, f.alerts.raised)
}

func TestCreateIntentCatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	f.svc.Pricing = pricing.Validator{Catalog: catalog.NewHolder(nil, zerolog.Nop()), Logger: zerolog.Nop()}
	_, err := f.svc.CreateIntent(context.Background(), "user-1", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	ae := appErr(t, err)
	require.Equal(t, http.StatusInternalServerError, ae.HTTPStatus)
	require.Equal(t, "please try again later", ae.Message)
	require.Empty(t, f.payments.requests)
}

func TestCreateIntentPaymentFailureCancelsOrder(t *testing.T) {
	f := newFixture(t)
	f.payments.err = errors.New("stripe down")
	_, err := f.svc.CreateIntent(context.Background(), "user-1", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	require.Equal(t, http.StatusInternalServerError, appErr(t, err).HTTPStatus)

	orders, total, err := f.orders.ListAll(context.Background(), order.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, order.StatusCancelled, orders[0].Status)
	require.Empty(t, f.emitter.topics)
}

type detachedOrders struct {
	*order.MemoryStore
}

func (detachedOrders) AttachIntent(context.Context, uuid.UUID, string, string) error {
	return errors.New("connection reset")
}

func TestCreateIntentAttachFailureCancelsOrder(t *testing.T) {
	f := newFixture(t)
	f.svc.Orders = detachedOrders{f.orders}
	_, err := f.svc.CreateIntent(context.Background(), "user-1", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	require.Equal(t, http.StatusInternalServerError, appErr(t, err).HTTPStatus)
	require.Len(t, f.payments.requests, 1)

	orders, total, err := f.orders.ListAll(context.Background(), order.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, order.StatusCancelled, orders[0].Status)
	require.Empty(t, orders[0].PaymentIntentID)
	require.Empty(t, f.emitter.topics)
}

func TestCreateIntentRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIntent(context.Background(), "", request(`[{"name":"Gulab Jamun","quantity":1}]`))
	require.Equal(t, http.StatusUnauthorized, appErr(t, err).HTTPStatus)
}
