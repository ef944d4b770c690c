package obs

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const routeKey ctxKey = iota

// WithRoutePattern records the matched route template, e.g.
// "/api/v1/admin/orders/{id}/status", for metric and audit labels.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey, pattern)
}

func RoutePatternFromContext(ctx context.Context) string {
	pattern, _ := ctx.Value(routeKey).(string)
	return pattern
}

// LoggerFrom returns the request logger attached by RequestLogger, falling
// back when none is attached.
func LoggerFrom(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}
