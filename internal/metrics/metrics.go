package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the delivery pipeline
var (
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_ingested_total",
			Help: "Total number of producer events received, by result",
		},
		[]string{"result"}, // accepted, duplicate, rejected
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of delivery attempts completed, by outcome",
		},
		[]string{"outcome"}, // success, failed
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Duration of delivery HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_retries_scheduled_total",
			Help: "Total number of retry attempts scheduled",
		},
	)

	AttemptsExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_attempts_exhausted_total",
			Help: "Total number of deliveries that exhausted their retry budget",
		},
	)

	EndpointsDisabledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_endpoints_disabled_total",
			Help: "Total number of endpoints auto-disabled after consecutive failures",
		},
	)

	SweepClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_sweep_claimed_total",
			Help: "Total number of due attempts claimed by sweep workers",
		},
	)

	SweepReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_sweep_reclaimed_total",
			Help: "Total number of stuck in-flight attempts reclaimed",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(EventsIngestedTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(RetriesScheduledTotal)
	prometheus.MustRegister(AttemptsExhaustedTotal)
	prometheus.MustRegister(EndpointsDisabledTotal)
	prometheus.MustRegister(SweepClaimedTotal)
	prometheus.MustRegister(SweepReclaimedTotal)
}
