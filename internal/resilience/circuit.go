package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when a breaker refuses an outbound call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the position of a Breaker in its state machine.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// outcomes is a fixed-size ring of recent call results.
type outcomes struct {
	buf    []bool
	next   int
	filled int
	failed int
}

func newOutcomes(size int) outcomes {
	return outcomes{buf: make([]bool, size)}
}

func (o *outcomes) push(ok bool) {
	if o.filled == len(o.buf) {
		if !o.buf[o.next] {
			o.failed--
		}
	} else {
		o.filled++
	}
	o.buf[o.next] = ok
	if !ok {
		o.failed++
	}
	o.next = (o.next + 1) % len(o.buf)
}

func (o *outcomes) reset() {
	o.next, o.filled, o.failed = 0, 0, 0
}

// Breaker guards one outbound provider. It trips when the failure ratio over
// the most recent calls reaches the threshold, stays open for a cool-off
// period, then lets exactly one trial request decide whether to close again.
type Breaker struct {
	mu        sync.Mutex
	state     State
	window    outcomes
	minCalls  int
	threshold float64
	coolOff   time.Duration
	openUntil time.Time
	inFlight  bool

	target string
	logger zerolog.Logger
	clock  func() time.Time
}

// NewBreaker returns a closed breaker. The failure ratio is evaluated once at
// least minRequests outcomes are in the window.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	minRequests = max(minRequests, 1)
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = min(max(failureRatio, 0.5), 1)
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		window:    newOutcomes(max(2*minRequests, 10)),
		minCalls:  minRequests,
		threshold: failureRatio,
		coolOff:   openFor,
		logger:    zerolog.Nop(),
		clock:     time.Now,
	}
}

// WithClock swaps the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	if now == nil {
		return b
	}
	b.mu.Lock()
	b.clock = now
	b.mu.Unlock()
	return b
}

// WithTarget names the provider in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	b.target = strings.TrimSpace(target)
	b.publishState()
	b.mu.Unlock()
	return b
}

func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
	return b
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go out now.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.clock().Before(b.openUntil) {
			return false
		}
		b.moveTo(ctx, HalfOpen)
	}
	if b.state == HalfOpen {
		if b.inFlight {
			return false
		}
		b.inFlight = true
	}
	return true
}

// Report feeds the result of a call admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.inFlight = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
		return
	}

	b.window.push(success)
	if b.window.filled < b.minCalls {
		return
	}
	if float64(b.window.failed)/float64(b.window.filled) >= b.threshold {
		b.moveTo(ctx, Open)
	}
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.window.reset()
	switch next {
	case Open:
		b.openUntil = b.clock().Add(b.coolOff)
	case Closed:
		b.openUntil = time.Time{}
	}
	b.publishState()
	if prev != next {
		b.announce(ctx, prev, next)
	}
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) publishState() {
	BreakerState.WithLabelValues(b.label()).Set(float64(b.state))
}

func (b *Breaker) announce(ctx context.Context, from, to State) {
	target := b.label()
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", target).Str("from_state", from.String()).Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}
