package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all notification pipeline metrics
type Metrics struct {
	// Delivery metrics
	NotificationsEnqueued *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	DeliveryRetries       *prometheus.CounterVec
	DeliveryThrottled     prometheus.Counter
	DeliveryLatency       *prometheus.HistogramVec
	QueueDepth            prometheus.Gauge
	TickDuration          prometheus.Histogram

	// Rate limiter metrics
	RateLimitDecisions   *prometheus.CounterVec
	RateLimitStoreErrors prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
}

// New creates and registers all metrics on reg. A nil registerer uses the
// default prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "enqueued_total",
			Help:      "Total number of notifications accepted into the delivery queue",
		}, []string{"kind"}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "sent_total",
			Help:      "Total number of notifications delivered",
		}, []string{"kind"}),
		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "failed_total",
			Help:      "Total number of notifications that reached the failed state",
		}, []string{"kind", "reason"}),
		DeliveryRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "retries_total",
			Help:      "Total number of delivery attempts rescheduled after a transient failure",
		}, []string{"kind"}),
		DeliveryThrottled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "throttled_total",
			Help:      "Total number of eligible deliveries deferred by the outbound rate limit",
		}),
		DeliveryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of transport calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind", "result"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "queue_depth",
			Help:      "Current number of notifications waiting in the delivery queue",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "tick_duration_seconds",
			Help:      "Time spent processing one worker tick",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),

		RateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by class and result",
		}, []string{"class", "result"}),
		RateLimitStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Shared counter store failures (requests allowed by failing open)",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_published_total",
			Help:      "Total number of domain events handed to the broker",
		}, []string{"type"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_dropped_total",
			Help:      "Total number of domain events the broker could not accept",
		}, []string{"type"}),
	}
}
