package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GPOMetrics counts collective-order engine activity.
type GPOMetrics struct {
	intentsSubmitted prometheus.Counter
	intentsCancelled prometheus.Counter
	ordersCreated    prometheus.Counter
	transitions      *prometheus.CounterVec
	savingsRecorded  prometheus.Counter
}

// NewGPOMetrics registers the engine counters on reg. A nil registerer yields
// a no-op recorder, as does a nil *GPOMetrics.
func NewGPOMetrics(reg prometheus.Registerer) *GPOMetrics {
	if reg == nil {
		return &GPOMetrics{}
	}
	m := &GPOMetrics{
		intentsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpo_intents_submitted_total",
			Help: "Purchase intents accepted.",
		}),
		intentsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpo_intents_cancelled_total",
			Help: "Purchase intents cancelled by their member.",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpo_orders_created_total",
			Help: "Group orders created from pooled demand.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpo_order_transitions_total",
			Help: "Group order lifecycle transitions applied, by target status.",
		}, []string{"status"}),
		savingsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpo_savings_recorded_total",
			Help: "Savings records written at distribution.",
		}),
	}
	reg.MustRegister(m.intentsSubmitted, m.intentsCancelled, m.ordersCreated, m.transitions, m.savingsRecorded)
	return m
}

func (m *GPOMetrics) IntentSubmitted() {
	if m == nil || m.intentsSubmitted == nil {
		return
	}
	m.intentsSubmitted.Inc()
}

func (m *GPOMetrics) IntentCancelled() {
	if m == nil || m.intentsCancelled == nil {
		return
	}
	m.intentsCancelled.Inc()
}

func (m *GPOMetrics) OrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *GPOMetrics) OrderTransitioned(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *GPOMetrics) SavingsRecorded(n int) {
	if m == nil || m.savingsRecorded == nil || n <= 0 {
		return
	}
	m.savingsRecorded.Add(float64(n))
}
