package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"

	"github.com/noah-isme/backend-resto/internal/common"
)

// StubSignatureHeader carries the HMAC of a stub webhook body.
const StubSignatureHeader = "X-Stub-Signature"

// Stub is a deterministic provider for local runs and tests. Its webhooks use
// the Stripe event shape signed with a shared secret.
type Stub struct {
	Secret string
}

func (s Stub) Name() string { return "stub" }

// CreateIntent derives intent identifiers from the order ID.
func (s Stub) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if err := req.validate(); err != nil {
		return IntentResponse{}, err
	}
	sum := sha256.Sum256([]byte(req.OrderID))
	id := "pi_stub_" + hex.EncodeToString(sum[:12])
	return IntentResponse{
		Provider:     s.Name(),
		IntentID:     id,
		ClientSecret: fmt.Sprintf("%s_secret_%d", id, req.Amount),
	}, nil
}

// VerifyWebhook validates the HMAC header and normalises the payload.
func (s Stub) VerifyWebhook(r *http.Request, body []byte) (WebhookEvent, error) {
	provided := strings.TrimSpace(r.Header.Get(StubSignatureHeader))
	if s.Secret == "" || provided == "" || !common.VerifyHMACSHA256Hex([]byte(s.Secret), body, provided) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var ev stripe.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("stub: decode event: %w", err)
	}
	return normaliseEvent(ev)
}

// Sign returns the hex HMAC-SHA256 of body.
func (s Stub) Sign(body []byte) string {
	return common.HMACSHA256Hex([]byte(s.Secret), body)
}
