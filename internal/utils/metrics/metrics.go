package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Billing metrics
	ChargesTotal          *prometheus.CounterVec
	CreditsChargedTotal   *prometheus.CounterVec
	RefundsTotal          *prometheus.CounterVec
	CreditsRefundedTotal  *prometheus.CounterVec
	CorrectionsTotal      *prometheus.CounterVec
	DuplicateSignalsTotal *prometheus.CounterVec
	RejectionsTotal       *prometheus.CounterVec
	TasksExpiredTotal     *prometheus.CounterVec
	UnknownTasksTotal     *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pixelmint"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		ChargesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "charges_total",
				Help:      "Total number of completed charges by feature and kind (free/paid)",
			},
			[]string{"feature", "kind"},
		),
		CreditsChargedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "credits_charged_total",
				Help:      "Total credits debited",
			},
			[]string{"feature"},
		),
		RefundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "refunds_total",
				Help:      "Total number of refunds that reversed a charge or free slot",
			},
			[]string{"feature", "reason"},
		),
		CreditsRefundedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "credits_refunded_total",
				Help:      "Total credits restored to balances",
			},
			[]string{"feature"},
		),
		CorrectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "corrections_total",
				Help:      "Total number of cost corrections by direction (debit/credit)",
			},
			[]string{"feature", "direction"},
		),
		DuplicateSignalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "duplicate_signals_total",
				Help:      "Completion or refund signals absorbed on already-terminal tasks",
			},
			[]string{"feature"},
		),
		RejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "rejections_total",
				Help:      "Access checks rejected for insufficient credits",
			},
			[]string{"feature"},
		),
		TasksExpiredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "tasks_expired_total",
				Help:      "Pending tasks expired by the sweeper",
			},
			[]string{"feature"},
		),
		UnknownTasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "unknown_tasks_total",
				Help:      "Completion signals with no matching task record",
			},
			[]string{"feature"},
		),
	}
}
