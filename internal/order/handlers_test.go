package order_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/order"
)

type recordingEmitter struct {
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.Event, error) {
	r.topics = append(r.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

func seed(t *testing.T, store *order.MemoryStore, userID string, status order.Status) order.Order {
	t.Helper()
	o := order.Order{UserID: userID, Status: status, Total: 126000, Currency: "INR",
		Items: []order.Item{{Label: "Gulab Jamun", Name: "Gulab Jamun", Quantity: 3, UnitPrice: 42000, LineTotal: 126000}}}
	require.NoError(t, store.Create(context.Background(), &o))
	return o
}

func userRouter(h *order.Handler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(common.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/orders", h.List)
	r.Get("/orders/{orderId}", h.Get)
	return r
}

func TestUserHandlerListsOnlyOwnOrders(t *testing.T) {
	store := order.NewMemoryStore()
	seed(t, store, "u1", order.StatusPlaced)
	seed(t, store, "u2", order.StatusPlaced)

	rec := httptest.NewRecorder()
	userRouter(&order.Handler{Store: store}, "u1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "1260.00", body.Data[0]["totalDisplay"])
}

func TestUserHandlerGetHidesOtherUsersOrders(t *testing.T) {
	store := order.NewMemoryStore()
	other := seed(t, store, "u2", order.StatusPlaced)
	mine := seed(t, store, "u1", order.StatusPlaced)
	h := userRouter(&order.Handler{Store: store}, "u1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+other.ID.String(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+mine.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Gulab Jamun")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandlerRequiresIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	userRouter(&order.Handler{Store: order.NewMemoryStore()}, "").
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func adminRouter(h *order.AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/admin/orders", h.List)
	r.Patch("/admin/orders/{id}/status", h.PatchStatus)
	return r
}

func TestAdminPatchStatus(t *testing.T) {
	store := order.NewMemoryStore()
	o := seed(t, store, "u1", order.StatusPlaced)
	emitter := &recordingEmitter{}
	h := adminRouter(&order.AdminHandler{Store: store, Events: emitter, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/"+o.ID.String()+"/status", strings.NewReader(`{"status":"preparing"}`))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{events.TopicOrderStatusChanged}, emitter.topics)

	got, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPreparing, got.Status)
}

func TestAdminPatchStatusRejectsInvalidMoves(t *testing.T) {
	store := order.NewMemoryStore()
	o := seed(t, store, "u1", order.StatusDelivered)
	h := adminRouter(&order.AdminHandler{Store: store, Logger: zerolog.Nop()})

	cases := map[string]int{
		`{"status":"cancelled"}`: http.StatusConflict,
		`{"status":"placed"}`:    http.StatusBadRequest,
		`{"status":""}`:          http.StatusBadRequest,
		`not json`:               http.StatusBadRequest,
	}
	for body, want := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/admin/orders/"+o.ID.String()+"/status", strings.NewReader(body)))
		require.Equal(t, want, rec.Code, body)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/admin/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"preparing"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListFiltersByStatus(t *testing.T) {
	store := order.NewMemoryStore()
	seed(t, store, "u1", order.StatusPlaced)
	seed(t, store, "u2", order.StatusAwaitingPayment)
	h := adminRouter(&order.AdminHandler{Store: store, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders?status=placed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders?status=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
