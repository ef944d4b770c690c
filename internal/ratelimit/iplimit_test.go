package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func TestIPLimiterPerClient(t *testing.T) {
	l, err := NewIPLimiter(memory.NewStore(), "2-M", zerolog.Nop())
	if err != nil {
		t.Fatalf("new ip limiter: %v", err)
	}
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after quota, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", code)
	}
}

func TestNewIPLimiterRejectsBadRate(t *testing.T) {
	if _, err := NewIPLimiter(memory.NewStore(), "lots", zerolog.Nop()); err == nil {
		t.Fatal("expected invalid rate error")
	}
}
