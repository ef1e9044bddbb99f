// Package telemetry exposes the Prometheus collectors shared by the workers.
// A nil *Metrics is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alerthub"

type Metrics struct {
	ticks           *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	actionsFired    prometheus.Counter
	publishFailures prometheus.Counter
	evaluations     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	queueHandled    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks by outcome.",
		}, []string{"outcome"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent detecting and dispatching due actions.",
			Buckets:   prometheus.DefBuckets,
		}),
		actionsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "actions_fired_total",
			Help:      "Execution messages published for due actions.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "publish_failures_total",
			Help:      "Due actions whose execution message could not be published.",
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "evaluations_total",
			Help:      "Condition evaluations by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "notifications_routed_total",
			Help:      "Notifications published by topic.",
		}, []string{"topic"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Notification delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		queueHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "handled_total",
			Help:      "Queue deliveries handled by topic, consumer group and outcome.",
		}, []string{"topic", "group", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ticks,
			m.tickDuration,
			m.actionsFired,
			m.publishFailures,
			m.evaluations,
			m.notifications,
			m.deliveries,
			m.queueHandled,
		)
	}

	return m
}

func (m *Metrics) Tick(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
	m.tickDuration.Observe(took.Seconds())
}

func (m *Metrics) ActionFired() {
	if m == nil {
		return
	}
	m.actionsFired.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) Evaluation(result string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationRouted(topic string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(topic).Inc()
}

func (m *Metrics) Delivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) QueueHandled(topic, group, outcome string) {
	if m == nil {
		return
	}
	m.queueHandled.WithLabelValues(topic, group, outcome).Inc()
}
