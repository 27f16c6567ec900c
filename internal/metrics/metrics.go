// Package metrics defines the Prometheus collectors for the offloader.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for file size histograms (bytes).
var sizeBuckets = []float64{4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864, 268435456}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offloader_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offloader_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Reconciliation metrics.
var (
	// StepsTotal counts executed steps by operation and outcome.
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offloader_steps_total",
			Help: "Reconciliation steps by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	// StepDuration observes step latency in seconds by operation.
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offloader_step_duration_seconds",
			Help:    "Step latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// AssetsTotal counts per-asset outcomes by operation: ok, skipped, failed.
	AssetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offloader_assets_total",
			Help: "Assets handled by operation and result",
		},
		[]string{"operation", "result"},
	)

	// FilesTotal counts file actions: upload, download, delete.
	FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offloader_files_total",
			Help: "File actions by type and status",
		},
		[]string{"action", "status"},
	)

	// FileSize observes transferred file sizes by action.
	FileSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offloader_file_size_bytes",
			Help:    "Transferred file size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"action"},
	)

	// BytesUploadedTotal counts bytes sent to the object store.
	BytesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offloader_bytes_uploaded_total",
			Help: "Total bytes uploaded to the object store",
		},
	)

	// BytesDownloadedTotal counts bytes fetched from the object store.
	BytesDownloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offloader_bytes_downloaded_total",
			Help: "Total bytes downloaded from the object store",
		},
	)

	// Progress is the last polled percentage by operation.
	Progress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offloader_progress_percent",
			Help: "Last polled progress percentage",
		},
		[]string{"operation"},
	)
)

// Register registers all Prometheus collectors with the default registry.
// It is called from main so registration can depend on configuration, and is
// safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			StepsTotal,
			StepDuration,
			AssetsTotal,
			FilesTotal,
			FileSize,
			BytesUploadedTotal,
			BytesDownloadedTotal,
			Progress,
		)
	})
}

// ObserveFile records one file action.
func ObserveFile(action string, size int64, err error) {
	if err != nil {
		FilesTotal.WithLabelValues(action, "error").Inc()
		return
	}
	FilesTotal.WithLabelValues(action, "success").Inc()
	if size <= 0 {
		return
	}
	FileSize.WithLabelValues(action).Observe(float64(size))
	switch action {
	case "upload":
		BytesUploadedTotal.Add(float64(size))
	case "download":
		BytesDownloadedTotal.Add(float64(size))
	}
}

// NormalizePath maps request paths to route templates suitable for metric
// labels, keeping asset IDs and operation names out of the label set.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/metrics", "/openapi.json", "/":
		return path
	case "":
		return "/"
	case "/docs", "/docs/":
		return "/docs"
	}
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return "/other"
	}
	switch parts[1] {
	case "operations":
		if len(parts) == 4 {
			return "/v1/operations/{operation}/" + parts[3]
		}
	case "assets":
		switch len(parts) {
		case 3:
			return "/v1/assets/{id}"
		case 4:
			return "/v1/assets/{id}/" + parts[3]
		}
	}
	return "/other"
}
