// Package metrics defines Prometheus metrics for the cutover pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FilesMigrated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutover_files_migrated_total",
			Help: "File migration outcomes by final record status",
		},
		[]string{"status"},
	)

	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cutover_transfer_duration_seconds",
			Help:    "Wall time of one file transfer (digest, upload, confirm)",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	BytesTransferred = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutover_bytes_transferred_total",
			Help: "Total bytes uploaded to the destination",
		},
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutover_retries_total",
			Help: "Transient failures that were requeued for retry",
		},
	)

	ChecksumMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutover_checksum_mismatches_total",
			Help: "Source/destination digest mismatches detected",
		},
	)

	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cutover_active_workers",
			Help: "Workers currently processing a claimed file",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FilesMigrated, TransferDuration, BytesTransferred,
		RetriesTotal, ChecksumMismatches, ActiveWorkers,
	)
}
