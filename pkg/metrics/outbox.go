package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxTerminal  = "terminal"
	OutboxDeferred  = "deferred"
)

// OutboxMetrics counts outbox rows handled by the publisher.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Counter
}

// NewOutboxMetrics registers the publisher counters on reg. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpo_outbox_events_total",
			Help: "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpo_outbox_batches_total",
			Help: "Non-empty outbox batches drained.",
		}),
	}
	reg.MustRegister(m.events, m.batches)
	return m
}

func (m *OutboxMetrics) Event(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) Batch() {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Inc()
}
