package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "app error keeps code and status",
			err:        NewAppError("UNKNOWN_ITEM", "unknown menu item", http.StatusUnprocessableEntity, nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "UNKNOWN_ITEM",
			wantMsg:    "unknown menu item",
		},
		{
			name:       "wrapped app error without status",
			err:        fmt.Errorf("checkout: %w", NewAppError("INVALID_ORDER", "invalid order", 0, nil)),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_ORDER",
			wantMsg:    "invalid order",
		},
		{
			name:       "plain error is opaque",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
			wantMsg:    "please try again later",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tc.err)

			require.Equal(t, tc.wantStatus, rr.Code)
			var body struct {
				Error ErrorBody `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.wantCode, body.Error.Code)
			require.Equal(t, tc.wantMsg, body.Error.Message)
			require.NotContains(t, rr.Body.String(), "pq:")
		})
	}
}

func TestAppErrorDetailsAreCopied(t *testing.T) {
	base := NewAppError("PRICE_MISMATCH", "price changed", http.StatusConflict, nil)
	withDetails := base.WithDetails(map[string]int64{"expected": 42000})

	require.Nil(t, base.Details)
	require.NotNil(t, withDetails.Details)
	require.True(t, IsAppError(withDetails))
	require.Equal(t, "PRICE_MISMATCH: price changed", withDetails.Error())
}

func TestDecodeJSON(t *testing.T) {
	var dst map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[]}`+"\n"))
	require.NoError(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	require.ErrorIs(t, DecodeJSON(req, &dst), ErrEmptyBody)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}{"b":2}`))
	require.Error(t, DecodeJSON(req, &dst))
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		page, per  int
		wantOffset int
	}{
		{query: "", page: 1, per: 20, wantOffset: 0},
		{query: "page=3&limit=10", page: 3, per: 10, wantOffset: 20},
		{query: "page=0&limit=-4", page: 1, per: 20, wantOffset: 0},
		{query: "page=2&limit=999", page: 2, per: 50, wantOffset: 50},
		{query: "page=abc", page: 1, per: 20, wantOffset: 0},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			page, per := ParsePagination(httptest.NewRequest(http.MethodGet, "/orders?"+tc.query, nil), 20, 50)
			require.Equal(t, tc.page, page)
			require.Equal(t, tc.per, per)
			require.Equal(t, tc.wantOffset, Offset(page, per))
		})
	}

	require.Equal(t, Pagination{Page: 2, PerPage: 10, TotalItems: 21, TotalPages: 3}, NewPagination(2, 10, 21))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4444"
	require.Equal(t, "10.1.2.3", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	require.Equal(t, "198.51.100.7", ClientIP(req))
}

func TestHMACSHA256Hex(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	sig := HMACSHA256Hex(secret, payload)

	require.True(t, VerifyHMACSHA256Hex(secret, payload, sig))
	require.False(t, VerifyHMACSHA256Hex([]byte("other"), payload, sig))
	require.False(t, VerifyHMACSHA256Hex(secret, payload, "zz"))
	require.Len(t, Sha256Hex("x"), 64)
}
