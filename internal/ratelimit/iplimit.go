package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-resto/internal/common"
)

// NewStore wires a fixed-window limiter store backed by Redis.
func NewStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// IPLimiter throttles requests per client IP using a fixed-window store.
type IPLimiter struct {
	Limiter *limiter.Limiter
	Logger  zerolog.Logger
}

// NewIPLimiter builds an IPLimiter from a formatted rate such as "120-M".
func NewIPLimiter(store limiter.Store, formatted string, logger zerolog.Logger) (*IPLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return &IPLimiter{Limiter: limiter.New(store, rate), Logger: logger}, nil
}

// Middleware rejects requests once the client IP exhausts its quota. Store errors fail open.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := common.ClientIP(r)
		lctx, err := l.Limiter.Get(r.Context(), ip)
		if err != nil {
			l.Logger.Warn().Err(err).Msg("ip rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		if lctx.Reached {
			l.Logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("ip rate limit reached")
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
