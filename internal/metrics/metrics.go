// Package metrics provides Prometheus metrics for recording analysis.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Load results.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultTooLarge  = "too_large"
	ResultNotFound  = "not_found"
	ResultError     = "error"
)

var (
	// RecordingLoadsTotal counts recording loads by result.
	RecordingLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekg_recording_loads_total",
		Help: "Total number of recording loads, by result.",
	}, []string{"result"})

	// AnalysisDuration tracks how long each analysis operation takes,
	// including the recording load.
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ekg_analysis_duration_seconds",
		Help:    "Duration of analysis operations, by operation.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"operation"})

	// PeaksPerRecording observes the number of detected beats per analysed recording.
	PeaksPerRecording = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ekg_peaks_per_recording",
		Help:    "Number of detected R-wave peaks per analysed recording.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	// AnomaliesTotal counts flagged intervals by side of the band.
	AnomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekg_anomalies_total",
		Help: "Total number of RR-intervals outside the age-adjusted band, by kind.",
	}, []string{"kind"})

	// ComparisonRowsTotal counts comparison rows by outcome.
	ComparisonRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekg_comparison_rows_total",
		Help: "Total number of comparison rows, by result.",
	}, []string{"result"})
)

// HTTPRequestDuration tracks request latency by route pattern, so recording
// ids do not inflate label cardinality.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ekg_http_request_duration_seconds",
	Help:    "HTTP request latencies in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})
