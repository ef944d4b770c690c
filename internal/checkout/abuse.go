package checkout

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/security"
)

// StrikeCounter is the sliding-window counter used to track invalid carts.
type StrikeCounter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error)
	Count(ctx context.Context, key string, window time.Duration) (int, error)
}

// AbuseGuard refuses callers that keep submitting carts with unknown items
// or malformed lines.
type AbuseGuard struct {
	Counter    StrikeCounter
	Window     time.Duration
	MaxStrikes int
	Logger     zerolog.Logger
	Alerts     security.Alerter
}

func (g *AbuseGuard) enabled() bool {
	return g != nil && g.Counter != nil && g.MaxStrikes > 0
}

func strikeKey(userID string) string {
	return "abuse:checkout:" + userID
}

// Blocked reports whether the caller is over the strike threshold. Counter
// failures fail open.
func (g *AbuseGuard) Blocked(ctx context.Context, userID string) bool {
	if !g.enabled() {
		return false
	}
	n, err := g.Counter.Count(ctx, strikeKey(userID), g.Window)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("abuse counter unavailable")
		return false
	}
	if n >= g.MaxStrikes {
		obs.CountAbuseBlock()
		g.Logger.Warn().Str("security", security.AlertCheckoutBlocked).Str("user_id", userID).Int("strikes", n).Msg("checkout refused after repeated invalid carts")
		security.Raise(ctx, g.Alerts, security.Alert{
			Type:     security.AlertCheckoutBlocked,
			Severity: security.SeverityHigh,
			Title:    "checkout refused after repeated invalid carts",
			UserID:   userID,
			Metadata: security.MetadataJSON(map[string]any{"strikes": n, "window": g.Window.String()}),
		})
		return true
	}
	return false
}

// Strike records one invalid cart for the caller.
func (g *AbuseGuard) Strike(ctx context.Context, userID string) {
	if !g.enabled() {
		return
	}
	if _, _, _, err := g.Counter.Allow(ctx, strikeKey(userID), g.Window, g.MaxStrikes); err != nil {
		g.Logger.Warn().Err(err).Msg("record checkout strike")
	}
}
