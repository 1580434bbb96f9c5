// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	ResultCacheHit = "cache_hit"
	ResultSuccess  = "success"
	ResultError    = "error"
)

// Pipeline metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photolog_pipeline_runs_total",
			Help: "Total number of pipeline runs by result",
		},
		[]string{"result"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photolog_pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	Photos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photolog_photos",
			Help: "Number of photos in the last successful run",
		},
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photolog_pipeline_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful pipeline run",
		},
	)
)

// Output metrics
var (
	VariantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photolog_variants_total",
			Help: "Total number of variant jobs by outcome",
		},
		[]string{"outcome"}, // "optimized", "skipped"
	)

	OutputBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photolog_output_bytes_total",
			Help: "Total bytes written by optimize jobs",
		},
	)

	ReportPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photolog_report_pruned_rows_total",
			Help: "Total number of rows pruned from the persisted report",
		},
	)

	StaleFilesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photolog_stale_files_deleted_total",
			Help: "Total number of stale output files deleted",
		},
	)
)

// RecordRun records the outcome and duration of one Process call.
func RecordRun(result string, d time.Duration) {
	RunsTotal.WithLabelValues(result).Inc()
	RunDuration.Observe(d.Seconds())
	if result == ResultSuccess {
		LastSuccessTimestamp.SetToCurrentTime()
	}
}

// RecordVariant records one optimize job.
func RecordVariant(skipped bool, outBytes int64) {
	if skipped {
		VariantsTotal.WithLabelValues("skipped").Inc()
		return
	}
	VariantsTotal.WithLabelValues("optimized").Inc()
	OutputBytesTotal.Add(float64(outBytes))
}
