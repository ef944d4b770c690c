package notify

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-resto/internal/resilience"
)

// NewOutboundClient builds the traced, retrying client used for provider calls.
// target labels the breaker metrics.
func NewOutboundClient(target string, timeout time.Duration, logger zerolog.Logger) resilience.HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second),
		BaseBackoff: 200 * time.Millisecond,
		MaxAttempts: 3,
		Jitter:      0.2,
		Timeout:     timeout,
		Target:      target,
		Logger:      &logger,
	}
}
