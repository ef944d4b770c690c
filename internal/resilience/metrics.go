package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker and outbound-call collectors live on the default registry; the
// metrics endpoint serves it next to the application registry.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "resto",
		Subsystem: "outbound",
		Name:      "breaker_state",
		Help:      "Breaker position per provider (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resto",
		Subsystem: "outbound",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per provider.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resto",
		Subsystem: "outbound",
		Name:      "breaker_trips_total",
		Help:      "Times a provider's breaker opened.",
	}, []string{"target"})

	OutboundRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resto",
		Subsystem: "outbound",
		Name:      "requests_total",
		Help:      "Provider call attempts by result: success, retry, failure or rejected.",
	}, []string{"target", "result"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundRequestsTotal)
}

func countOutbound(target, result string) {
	if target == "" {
		target = "default"
	}
	OutboundRequestsTotal.WithLabelValues(target, result).Inc()
}
