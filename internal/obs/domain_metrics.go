package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingRejectionsTotal counts cart pricing failures by reason.
	PricingRejectionsTotal *prometheus.CounterVec
	// CatalogEntries reports the number of entries in the active price table.
	CatalogEntries prometheus.Gauge
	// CatalogReloadTotal counts catalog reload attempts by outcome.
	CatalogReloadTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// AbuseBlocksTotal counts checkout requests refused by the abuse guard.
	AbuseBlocksTotal prometheus.Counter
	// SecurityAlertsTotal counts recorded security alerts by type.
	SecurityAlertsTotal *prometheus.CounterVec
	// BlockedRequestsTotal counts requests refused because the client IP is blocked.
	BlockedRequestsTotal prometheus.Counter
	// NotificationsTotal counts notification deliveries by channel and outcome.
	NotificationsTotal *prometheus.CounterVec
	// NotificationLatency records notification delivery latency in milliseconds.
	NotificationLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_rejections_total",
			Help:      "Count of rejected cart pricing attempts by reason.",
		}, []string{"reason"})
		CatalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Number of entries in the active price catalog.",
		})
		CatalogReloadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reload_total",
			Help:      "Count of catalog reload attempts by outcome.",
		}, []string{"result"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		AbuseBlocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abuse_blocks_total",
			Help:      "Number of checkout requests refused after repeated invalid carts.",
		})
		SecurityAlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_alerts_total",
			Help:      "Count of recorded security alerts by type.",
		}, []string{"type"})
		BlockedRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_requests_total",
			Help:      "Number of requests refused from blocked IP addresses.",
		})
		NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_sent_total",
			Help:      "Count of notification deliveries by channel and outcome.",
		}, []string{"channel", "result"})
		NotificationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_ms",
			Help:      "Latency for notification deliveries in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"channel"})

		mustRegisterCollector(reg, PricingRejectionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingRejectionsTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogEntries, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				CatalogEntries = v
			}
		})
		mustRegisterCollector(reg, CatalogReloadTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogReloadTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentIntentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentIntentTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, AbuseBlocksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AbuseBlocksTotal = v
			}
		})
		mustRegisterCollector(reg, SecurityAlertsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SecurityAlertsTotal = v
			}
		})
		mustRegisterCollector(reg, BlockedRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				BlockedRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, NotificationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationsTotal = v
			}
		})
		mustRegisterCollector(reg, NotificationLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				NotificationLatency = v
			}
		})
	})
}

// CountPricingRejection increments the rejection counter when domain metrics are registered.
func CountPricingRejection(reason string) {
	if PricingRejectionsTotal != nil {
		PricingRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// SetCatalogEntries records the active catalog size.
func SetCatalogEntries(n int) {
	if CatalogEntries != nil {
		CatalogEntries.Set(float64(n))
	}
}

// CountCatalogReload records a reload outcome.
func CountCatalogReload(result string) {
	if CatalogReloadTotal != nil {
		CatalogReloadTotal.WithLabelValues(result).Inc()
	}
}

// CountAbuseBlock records a checkout refused by the abuse guard.
func CountAbuseBlock() {
	if AbuseBlocksTotal != nil {
		AbuseBlocksTotal.Inc()
	}
}

// CountSecurityAlert records an alert of the given type.
func CountSecurityAlert(alertType string) {
	if SecurityAlertsTotal != nil {
		SecurityAlertsTotal.WithLabelValues(alertType).Inc()
	}
}

// CountBlockedRequest records a request refused by the IP blocklist.
func CountBlockedRequest() {
	if BlockedRequestsTotal != nil {
		BlockedRequestsTotal.Inc()
	}
}

// ObserveNotification records a delivery outcome and its latency.
func ObserveNotification(channel, result string, durationMs float64) {
	if NotificationsTotal != nil {
		NotificationsTotal.WithLabelValues(channel, result).Inc()
	}
	if NotificationLatency != nil {
		NotificationLatency.WithLabelValues(channel).Observe(durationMs)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
