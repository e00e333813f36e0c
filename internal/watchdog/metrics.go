package watchdog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchdog_ticks_total",
		Help: "Completed watchdog ticks.",
	})

	scanFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdog_scan_failures_total",
		Help: "Scan executions that ended in an error or panic.",
	}, []string{"scan"})

	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchdog_escalations_total",
		Help: "Hazard escalations raised by the watchdog.",
	}, []string{"kind"})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchdog_tick_duration_seconds",
		Help:    "Wall time of one full watchdog tick.",
		Buckets: prometheus.DefBuckets,
	})
)
