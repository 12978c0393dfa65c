// Package metrics provides Prometheus metrics for the pivoter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pivoter.
type Metrics struct {
	// File metrics
	FilesProcessed *prometheus.CounterVec
	FilesFailed    *prometheus.CounterVec
	FilesEmpty     *prometheus.CounterVec

	// Transfer metrics
	UploadRetries    *prometheus.CounterVec
	UploadsExhausted *prometheus.CounterVec

	// Ledger metrics
	LedgerSize prometheus.Gauge

	// Timing metrics
	FileDuration      *prometheus.HistogramVec
	PartitionDuration *prometheus.HistogramVec

	// Pipeline metrics
	InFlightPartitions prometheus.Gauge
	RetryPasses        prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "aq_pivoter"
	}

	m := &Metrics{
		FilesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Total number of files fully processed",
			},
			[]string{"city", "location_id"},
		),
		FilesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Total number of files that failed processing",
			},
			[]string{"city", "location_id", "stage"},
		),
		FilesEmpty: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_empty_total",
				Help:      "Total number of files rejected as empty input",
			},
			[]string{"city", "location_id"},
		),
		UploadRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_retries_total",
				Help:      "Total number of upload retry attempts",
			},
			[]string{"city"},
		),
		UploadsExhausted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_exhausted_total",
				Help:      "Total number of uploads that exhausted their retry budget",
			},
			[]string{"city"},
		),
		LedgerSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "failure_ledger_size",
				Help:      "Current number of keys recorded in the failure ledger",
			},
		),
		FileDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_duration_seconds",
				Help:      "Time to process one file end to end",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
			},
			[]string{"city"},
		),
		PartitionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "partition_duration_seconds",
				Help:      "Time to process one (location, year) partition",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
			[]string{"city"},
		),
		InFlightPartitions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_partitions",
				Help:      "Number of partitions currently being processed",
			},
		),
		RetryPasses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_passes_total",
				Help:      "Total number of retry driver passes executed",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// Labels is a convenience type for metric labels.
type Labels struct {
	City       string
	LocationID string
	Stage      string
}

// IncFilesProcessed increments the files processed counter.
func (m *Metrics) IncFilesProcessed(l Labels) {
	m.FilesProcessed.WithLabelValues(l.City, l.LocationID).Inc()
}

// IncFilesFailed increments the files failed counter.
func (m *Metrics) IncFilesFailed(l Labels) {
	m.FilesFailed.WithLabelValues(l.City, l.LocationID, l.Stage).Inc()
}

// IncFilesEmpty increments the empty input counter.
func (m *Metrics) IncFilesEmpty(l Labels) {
	m.FilesEmpty.WithLabelValues(l.City, l.LocationID).Inc()
}

// IncUploadRetries increments the upload retry counter.
func (m *Metrics) IncUploadRetries(l Labels) {
	m.UploadRetries.WithLabelValues(l.City).Inc()
}

// IncUploadsExhausted increments the exhausted upload counter.
func (m *Metrics) IncUploadsExhausted(l Labels) {
	m.UploadsExhausted.WithLabelValues(l.City).Inc()
}

// SetLedgerSize sets the current failure ledger entry count.
func (m *Metrics) SetLedgerSize(n float64) {
	m.LedgerSize.Set(n)
}

// ObserveFileDuration records the end-to-end time for one file.
func (m *Metrics) ObserveFileDuration(l Labels, seconds float64) {
	m.FileDuration.WithLabelValues(l.City).Observe(seconds)
}

// ObservePartitionDuration records the time for one partition.
func (m *Metrics) ObservePartitionDuration(l Labels, seconds float64) {
	m.PartitionDuration.WithLabelValues(l.City).Observe(seconds)
}

// SetInFlightPartitions sets the number of in-flight partitions.
func (m *Metrics) SetInFlightPartitions(count float64) {
	m.InFlightPartitions.Set(count)
}

// IncRetryPasses increments the retry pass counter.
func (m *Metrics) IncRetryPasses() {
	m.RetryPasses.Inc()
}
