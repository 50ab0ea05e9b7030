package webhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chantierops/signalement/internal/pkg/metrics"
)

var (
	deliveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "webhooks",
		Name:      "delivery_attempts_total",
		Help:      "Webhook delivery attempts by event type and outcome.",
	}, []string{"event_type", "outcome"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "webhooks",
		Name:      "delivery_duration_seconds",
		Help:      "Duration of individual webhook delivery attempts.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	inflightDeliveries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "webhooks",
		Name:      "inflight_deliveries",
		Help:      "Deliveries currently being attempted.",
	})

	subscriptionsTripped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "webhooks",
		Name:      "subscriptions_tripped_total",
		Help:      "Subscriptions deactivated after consecutive delivery failures.",
	})
)
