package resilience

import (
	"math/rand"
	"time"
)

// Backoff doubles base for every attempt after the first. jitter is a
// fraction of the result (0.2 spreads it by ±20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	attempt = max(attempt, 1)
	d := base << (attempt - 1)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return d + time.Duration(spread*(2*rand.Float64()-1))
}
