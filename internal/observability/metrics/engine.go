package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics tracks entitlement decisions and webhook reconciliation.
type EngineMetrics struct {
	decisions     *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizsuite_entitlement_decisions_total",
			Help: "Entitlement decisions by module, feature and outcome.",
		}, []string{"module", "feature", "allowed"}),
		webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizsuite_payment_webhook_events_total",
			Help: "Payment webhook events by provider and result.",
		}, []string{"provider", "result"}),
		sweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizsuite_sweeper_transitions_total",
			Help: "Subscription transitions applied by the reconciliation sweep.",
		}, []string{"kind"}),
	}
}

func (m *EngineMetrics) RecordDecision(module, feature string, allowed bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(module, feature, strconv.FormatBool(allowed)).Inc()
}

func (m *EngineMetrics) RecordWebhookEvent(provider, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, result).Inc()
}

func (m *EngineMetrics) RecordSweepTransition(kind string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(kind).Inc()
}
