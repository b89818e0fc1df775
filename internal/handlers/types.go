package handlers

import (
	"github.com/prometheus/client_golang/prometheus"

	"squeegee/pkg/monitoring"
)

// SqueegeeMetrics holds the service-specific Prometheus collectors
type SqueegeeMetrics struct {
	PaymentLinksCreated *prometheus.CounterVec
	CreditsApplied      prometheus.Counter
	WebhooksProcessed   *prometheus.CounterVec
	SMSForwarded        *prometheus.CounterVec
	QueueDepth          *prometheus.GaugeVec
}

// NewSqueegeeMetrics registers the service collectors on the shared collector
func NewSqueegeeMetrics(collector *monitoring.MetricsCollector) *SqueegeeMetrics {
	return &SqueegeeMetrics{
		PaymentLinksCreated: collector.NewCounter(
			"payment_links_created_total",
			"Payment links created by outcome",
			[]string{"outcome"},
		),
		CreditsApplied: collector.NewCounter(
			"sms_credits_applied_total",
			"SMS credits applied to subscriber balances",
			nil,
		).WithLabelValues(),
		WebhooksProcessed: collector.NewCounter(
			"provider_webhooks_processed_total",
			"Provider webhook events processed by action and outcome",
			[]string{"action", "outcome"},
		),
		SMSForwarded: collector.NewCounter(
			"sms_forwarded_total",
			"SMS messages forwarded to the provider by outcome",
			[]string{"outcome"},
		),
		QueueDepth: collector.NewGauge(
			"offline_queue_depth",
			"Offline quote queue depth by classification",
			[]string{"classification"},
		),
	}
}
