package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "runs_total",
		Help:      "Total number of cache runs started.",
	})
	runFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "run_failures_total",
		Help:      "Total number of runs aborted at the aggregation query stage.",
	})
	recordsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "cache_records_created_total",
		Help:      "Total number of daily cache records created by merges.",
	})
	recordsUpdatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "cache_records_updated_total",
		Help:      "Total number of daily cache records updated by merges.",
	})
	surveysFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "surveys_failed_total",
		Help:      "Total number of per-survey merge failures.",
	})
	doubleRunsSuspectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "double_runs_suspected_total",
		Help:      "Total number of runs that detected a non-advancing watermark.",
	})
	backfilledViewedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "backfilled_viewed_impressions_total",
		Help:      "Total viewed impressions credited to earlier days by backfill.",
	})
	backfilledSubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "backfilled_submissions_total",
		Help:      "Total submissions credited to earlier days by backfill.",
	})
	backfillFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "surveycache",
		Name:      "backfill_failures_total",
		Help:      "Total per-record backfill failures.",
	})
)

// InitMetrics registers the engine metrics with the default prometheus
// registry. Call once from main.
func InitMetrics() {
	prometheus.MustRegister(
		runsTotal,
		runFailuresTotal,
		recordsCreatedTotal,
		recordsUpdatedTotal,
		surveysFailedTotal,
		doubleRunsSuspectedTotal,
		backfilledViewedTotal,
		backfilledSubmissionsTotal,
		backfillFailuresTotal,
	)
}
