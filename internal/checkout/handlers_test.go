package checkout_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/checkout"
	"github.com/noah-isme/backend-resto/internal/common"
)

func TestHandlerCreateIntent(t *testing.T) {
	f := newFixture(t)
	h := &checkout.Handler{Svc: f.svc}

	body := `{"cartItems":[{"name":"Gulab Jamun","quantity":3}],"customerDetails":{"name":"Asha","email":"asha@example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.CreateIntent(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "1260.00", out["total"])
	require.NotEmpty(t, out["clientSecret"])
	require.NotEmpty(t, out["paymentIntentId"])
	require.NotEmpty(t, out["orderId"])
}

func TestHandlerCreateIntentErrors(t *testing.T) {
	f := newFixture(t)
	h := &checkout.Handler{Svc: f.svc}

	rec := httptest.NewRecorder()
	h.CreateIntent(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Authentication required")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{"cartItems":`))
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	rec = httptest.NewRecorder()
	h.CreateIntent(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"cartItems":[{"name":"Secret Menu","quantity":1}],"customerDetails":{"name":"Asha","email":"asha@example.com"}}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	rec = httptest.NewRecorder()
	h.CreateIntent(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid order")
	require.NotContains(t, rec.Body.String(), "Secret Menu")
}
