package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/resilience"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBreakerOpensRetriesAndCloses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := resilience.NewBreaker(2, 0.5, 50*time.Millisecond).WithClock(clock.Now)
	ctx := context.Background()

	for range 2 {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, false)
	}
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx))

	clock.Advance(60 * time.Millisecond)
	require.True(t, b.Allow(ctx))
	require.Equal(t, resilience.HalfOpen, b.State())
	b.Report(ctx, true)
	require.Equal(t, resilience.Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	b := resilience.NewBreaker(4, 0.5, time.Second)
	ctx := context.Background()

	for _, ok := range []bool{true, false, true, true, false, true, true} {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, ok)
	}
	require.Equal(t, resilience.Closed, b.State())
}

func TestBreakerOldOutcomesAgeOut(t *testing.T) {
	b := resilience.NewBreaker(5, 0.5, time.Second)
	ctx := context.Background()

	// Four early failures are pushed out of the ten-call window by successes.
	for range 4 {
		b.Report(ctx, false)
		b.Report(ctx, true)
		b.Report(ctx, true)
	}
	require.Equal(t, resilience.Closed, b.State())
	for range 10 {
		b.Report(ctx, true)
	}
	for range 4 {
		b.Report(ctx, false)
	}
	require.Equal(t, resilience.Closed, b.State(), "4 failures in the last 10 calls stay under 50%")
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := resilience.NewBreaker(1, 0.5, time.Second).WithClock(clock.Now)
	ctx := context.Background()

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())

	clock.Advance(2 * time.Second)
	require.True(t, b.Allow(ctx))
	require.False(t, b.Allow(ctx), "second caller waits for the trial request")

	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.False(t, b.Allow(ctx), "failed trial restarts the cool-off")
}

func TestBreakerPublishesMetrics(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := resilience.NewBreaker(1, 0.5, 20*time.Millisecond).WithClock(clock.Now).WithTarget("twilio")
	ctx := context.Background()
	state := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues("twilio")) }

	require.Zero(t, state())
	b.Report(ctx, false)
	require.Equal(t, 1.0, state())

	clock.Advance(time.Second)
	require.True(t, b.Allow(ctx))
	require.Equal(t, 2.0, state())

	b.Report(ctx, true)
	require.Zero(t, state())

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("twilio")))
	for _, edge := range [][2]string{{"closed", "open"}, {"open", "half_open"}, {"half_open", "closed"}} {
		require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("twilio", edge[0], edge[1])), edge)
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, 4*base, resilience.Backoff(base, 3, 0))
	require.Equal(t, base, resilience.Backoff(base, 0, 0), "attempts below one count as the first")

	for range 50 {
		d := resilience.Backoff(base, 2, 0.2)
		require.GreaterOrEqual(t, d, 160*time.Millisecond)
		require.LessOrEqual(t, d, 240*time.Millisecond)
	}
}
