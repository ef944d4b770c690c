package security

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
)

// Severity ranks a security alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Alert types raised by the API.
const (
	AlertUnknownMenuItem  = "unknown_menu_item"
	AlertCheckoutBlocked  = "checkout_blocked"
	AlertAmountMismatch   = "amount_mismatch"
	AlertWebhookSignature = "webhook_signature"
	AlertAdminPINLockout  = "admin_pin_lockout"
)

// ErrNotFound is returned when an alert or block does not exist.
var ErrNotFound = errors.New("security: not found")

// Alert is one row of the security_alerts table.
type Alert struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"alert_type"`
	Severity    Severity        `json:"severity"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	IP          string          `json:"ip_address,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Resolved    bool            `json:"resolved"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy  string          `json:"resolved_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	OpenOnly bool
	Limit    int
	Offset   int
}

// AlertStore persists security alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, a Alert) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error)
	ResolveAlert(ctx context.Context, id uuid.UUID, by string, at time.Time) error
	CountOpenAlerts(ctx context.Context) (int64, error)
}

// Alerter raises security alerts. Raising never fails the caller's request.
type Alerter interface {
	Raise(ctx context.Context, a Alert)
}

// Raise forwards a to alerter when one is configured.
func Raise(ctx context.Context, alerter Alerter, a Alert) {
	if alerter != nil {
		alerter.Raise(ctx, a)
	}
}

// Alerts records alerts in the store. Repeats of the same type from the same
// source inside Window are dropped so a single abuser cannot flood the table.
type Alerts struct {
	Store    AlertStore
	Throttle redis.Cmdable
	Window   time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

var _ Alerter = (*Alerts)(nil)

func (s *Alerts) Raise(ctx context.Context, a Alert) {
	if s == nil || s.Store == nil || a.Type == "" {
		return
	}
	if a.IP == "" {
		a.IP = common.ClientIPFrom(ctx)
	}
	if a.Severity == "" {
		a.Severity = SeverityMedium
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if !s.first(ctx, a) {
		return
	}
	a.ID = uuid.New()
	a.CreatedAt = s.now().UTC()
	a.Resolved, a.ResolvedAt, a.ResolvedBy = false, nil, ""
	if err := s.Store.InsertAlert(ctx, a); err != nil {
		s.Logger.Error().Err(err).Str("alert_type", a.Type).Msg("record security alert")
		return
	}
	obs.CountSecurityAlert(a.Type)
	s.Logger.Warn().
		Str("alert_type", a.Type).
		Str("severity", string(a.Severity)).
		Str("ip", a.IP).
		Str("user_id", a.UserID).
		Msg(a.Title)
}

// first claims the throttle slot for a's type and source. Redis errors let
// the alert through.
func (s *Alerts) first(ctx context.Context, a Alert) bool {
	if s.Throttle == nil || s.Window <= 0 {
		return true
	}
	key := "resto:alert:" + a.Type + ":" + a.UserID + ":" + a.IP
	ok, err := s.Throttle.SetNX(ctx, key, 1, s.Window).Result()
	if err != nil {
		s.Logger.Warn().Err(err).Msg("alert throttle unavailable")
		return true
	}
	return ok
}

func (s *Alerts) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// MetadataJSON encodes m for Alert.Metadata, dropping it when encoding fails.
func MetadataJSON(m map[string]any) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}
