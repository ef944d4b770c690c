package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
)

type stubStore struct {
	last   Entry
	called bool

	listed         []Entry
	receivedLimit  int
	receivedOffset int
}

func (s *stubStore) Insert(_ context.Context, e Entry) error {
	s.called = true
	s.last = e
	return nil
}

func (s *stubStore) List(_ context.Context, limit, offset int) ([]Entry, error) {
	s.receivedLimit, s.receivedOffset = limit, offset
	return s.listed, nil
}

func TestServiceRecord(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true, SamplingRate: 1}
	userID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPatch, "https://api.test/api/v1/admin/orders/abc/status?notify=false", nil)
	req.Header.Set("User-Agent", "tester")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithUserID(req.Context(), userID)
	ctx = obs.WithRoutePattern(ctx, "/api/v1/admin/orders/{id}/status")
	req = req.WithContext(ctx)

	if err := svc.Record(req.Context(), Actor{Kind: ActorKindAdmin, UserID: userID}, "", "", "abc", req, http.StatusOK, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !store.called {
		t.Fatal("expected store to be called")
	}
	e := store.last
	if e.ActorKind != string(ActorKindAdmin) || e.ActorUserID != userID {
		t.Fatalf("unexpected actor: %s %s", e.ActorKind, e.ActorUserID)
	}
	if e.Action != "PATCH /api/v1/admin/orders/{id}/status" {
		t.Fatalf("unexpected action: %s", e.Action)
	}
	if e.ResourceType != "admin.orders.status" {
		t.Fatalf("unexpected resource type: %s", e.ResourceType)
	}
	if e.ResourceID != "abc" {
		t.Fatalf("unexpected resource id: %s", e.ResourceID)
	}
	if e.IP != "10.0.0.2" {
		t.Fatalf("expected ip capture, got %q", e.IP)
	}
	if e.RequestID != "req-123" {
		t.Fatalf("expected request id, got %q", e.RequestID)
	}
	var meta map[string]string
	if err := json.Unmarshal(e.Metadata, &meta); err != nil {
		t.Fatalf("metadata json: %v", err)
	}
	if meta["query"] != "notify=false" {
		t.Fatalf("unexpected metadata query: %s", meta["query"])
	}
}

func TestServiceRecordAnonymousDropsUserID(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", nil)
	if err := svc.Record(req.Context(), Actor{Kind: "robot", UserID: "u1"}, "payment.webhook", "", "", req, 0, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.last.ActorKind != string(ActorKindAnonymous) || store.last.ActorUserID != "" {
		t.Fatalf("unexpected actor: %+v", store.last)
	}
	if store.last.Action != "payment.webhook" || store.last.Status != http.StatusOK {
		t.Fatalf("unexpected entry: %+v", store.last)
	}
	if string(store.last.Metadata) != `{"ok":true}` {
		t.Fatalf("unexpected metadata: %s", store.last.Metadata)
	}
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: false}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := svc.Record(req.Context(), Actor{}, "", "", "", req, http.StatusOK, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.called {
		t.Fatal("expected no insert when disabled")
	}
}

func TestMiddlewareRecordsAdminActor(t *testing.T) {
	store := &stubStore{}
	rec := HTTPRecorder{Service: &Service{Store: store, Enabled: true}}
	h := rec.Middleware(HTTPConfig{Action: "order.status.update", ResourceType: "order"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/1/status", nil)
	req = req.WithContext(common.WithAdmin(req.Context()))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if store.last.ActorKind != string(ActorKindAdmin) {
		t.Fatalf("expected admin actor, got %s", store.last.ActorKind)
	}
	if store.last.Status != http.StatusConflict {
		t.Fatalf("expected recorded status 409, got %d", store.last.Status)
	}
}

func TestHandlerListPaginates(t *testing.T) {
	store := &stubStore{listed: []Entry{{Action: "order.status.update", Method: http.MethodPatch}}}
	rr := httptest.NewRecorder()
	Handler{Store: store}.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?page=3&limit=25", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.receivedLimit != 25 || store.receivedOffset != 50 {
		t.Fatalf("unexpected pagination params: %d/%d", store.receivedLimit, store.receivedOffset)
	}
	var payload struct {
		Items   []map[string]any `json:"items"`
		Page    int              `json:"page"`
		PerPage int              `json:"per_page"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Page != 3 || payload.PerPage != 25 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandlerListCapsPageSize(t *testing.T) {
	store := &stubStore{}
	rr := httptest.NewRecorder()
	Handler{Store: store}.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?limit=5000", nil))

	if store.receivedLimit != 200 || store.receivedOffset != 0 {
		t.Fatalf("expected capped limit, got %d/%d", store.receivedLimit, store.receivedOffset)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", rr.Body.String())
	}
}
