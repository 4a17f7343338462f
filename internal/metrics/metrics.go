package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitwatch_cycles_total",
			Help: "Total number of polling cycles",
		},
		[]string{"result"}, // result: ok, unavailable, error
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rabbitwatch_cycle_duration_seconds",
			Help:    "Time spent in poll, evaluate and notify",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Broker client metrics
	PollFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitwatch_poll_failures_total",
			Help: "Total number of failed management API reads",
		},
		[]string{"endpoint"},
	)

	// Evaluation metrics
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitwatch_findings_total",
			Help: "Total number of findings produced by rule evaluation",
		},
		[]string{"kind", "severity"},
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rabbitwatch_active_alerts",
			Help: "Number of (condition, subject) pairs currently firing",
		},
	)

	TrackedQueues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rabbitwatch_tracked_queues",
			Help: "Number of queues held in the sample store",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitwatch_notifications_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "type", "status"}, // status: sent, failed, skipped
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
