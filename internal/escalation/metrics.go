package escalation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chantierops/signalement/internal/pkg/metrics"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "escalation",
		Name:      "runs_total",
		Help:      "Completed escalation scan runs.",
	})

	runsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "escalation",
		Name:      "runs_skipped_total",
		Help:      "Scan ticks skipped because the previous run was still in flight.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "escalation",
		Name:      "run_duration_seconds",
		Help:      "Duration of escalation scan runs.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	})

	overdueIncidents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "escalation",
		Name:      "overdue_incidents",
		Help:      "Overdue active incidents observed by the latest scan.",
	})

	escalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "escalation",
		Name:      "escalations_total",
		Help:      "Escalation events fired, by incident priority.",
	}, []string{"priority"})
)
