package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/security"
)

// AdminPINHeader carries the staff PIN on admin requests.
const AdminPINHeader = "X-Admin-PIN"

// FailureCounter records failed PIN attempts per client.
type FailureCounter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error)
	Count(ctx context.Context, key string, window time.Duration) (int, error)
}

// AdminGuard verifies the admin PIN against an argon2id hash.
// The result is stored on the request context only.
type AdminGuard struct {
	PINHash  string
	Failures FailureCounter
	MaxFails int
	Window   time.Duration
	Logger   zerolog.Logger
	Alerts   security.Alerter
}

// Middleware rejects requests without a valid admin PIN.
func (g AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pin := strings.TrimSpace(r.Header.Get(AdminPINHeader))
		if pin == "" {
			common.JSONError(w, http.StatusUnauthorized, "ADMIN_PIN_REQUIRED", "Admin PIN required", nil)
			return
		}
		ctx := r.Context()
		ip := common.ClientIP(r)
		if g.locked(ctx, ip) {
			g.Logger.Warn().Str("ip", ip).Msg("admin pin refused during lockout")
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many failed attempts", nil)
			return
		}
		ok, err := g.verify(pin)
		if err != nil {
			g.Logger.Error().Err(err).Msg("admin pin verification failed")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
			return
		}
		if !ok {
			g.Logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("invalid admin pin")
			if g.recordFailure(ctx, ip) {
				g.Logger.Warn().Str("security", security.AlertAdminPINLockout).Str("ip", ip).Msg("admin pin locked out")
				security.Raise(ctx, g.Alerts, security.Alert{
					Type:     security.AlertAdminPINLockout,
					Severity: security.SeverityCritical,
					Title:    "admin pin locked out after repeated failures",
					IP:       ip,
					Metadata: security.MetadataJSON(map[string]any{"max_fails": g.MaxFails, "window": g.Window.String(), "path": r.URL.Path}),
				})
			}
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "Invalid admin PIN", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAdmin(ctx)))
	})
}

func (g AdminGuard) verify(pin string) (bool, error) {
	if g.PINHash == "" {
		return false, nil
	}
	return argon2id.ComparePasswordAndHash(pin, g.PINHash)
}

func (g AdminGuard) locked(ctx context.Context, ip string) bool {
	if g.Failures == nil || g.MaxFails <= 0 {
		return false
	}
	n, err := g.Failures.Count(ctx, "adminpin:"+ip, g.Window)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("admin pin failure counter unavailable")
		return false
	}
	return n >= g.MaxFails
}

// recordFailure counts a bad PIN and reports whether it used up the last
// allowed attempt.
func (g AdminGuard) recordFailure(ctx context.Context, ip string) bool {
	if g.Failures == nil || g.MaxFails <= 0 {
		return false
	}
	_, remaining, _, err := g.Failures.Allow(ctx, "adminpin:"+ip, g.Window, g.MaxFails)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("record admin pin failure")
		return false
	}
	return remaining == 0
}

// HashPIN derives an argon2id hash suitable for ADMIN_PIN_HASH.
func HashPIN(pin string) (string, error) {
	return argon2id.CreateHash(pin, argon2id.DefaultParams)
}
