// Package metrics provides Prometheus metrics for the drive server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadrive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratadrive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Upload / delete metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadrive_uploads_total",
			Help: "Total number of file uploads",
		},
		[]string{"status"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stratadrive_upload_bytes_total",
			Help: "Total bytes committed by successful uploads",
		},
	)

	permanentDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadrive_permanent_deletes_total",
			Help: "Total number of permanent file deletions",
		},
		[]string{"status"},
	)

	quotaExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stratadrive_quota_exceeded_total",
			Help: "Total uploads rejected for exceeding the storage quota",
		},
	)

	// Trash cascade metrics
	cascadeSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratadrive_cascade_folders",
			Help:    "Number of folders touched by a trash or restore cascade",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"operation"},
	)

	// Blob store metrics
	blobOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratadrive_blob_operation_duration_seconds",
			Help:    "Blob store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	blobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadrive_blob_operations_total",
			Help: "Total blob store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadrive_auth_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"result"},
	)

	// Background task metrics
	taskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadrive_task_runs_total",
			Help: "Total background task runs",
		},
		[]string{"task", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUpload records an upload attempt and, on success, its size.
func RecordUpload(bytes int64, success bool) {
	uploadsTotal.WithLabelValues(statusLabel(success)).Inc()
	if success {
		uploadBytes.Add(float64(bytes))
	}
}

// RecordPermanentDelete records a permanent file deletion.
func RecordPermanentDelete(success bool) {
	permanentDeletesTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordQuotaExceeded records an upload rejected by the quota ledger.
func RecordQuotaExceeded() {
	quotaExceededTotal.Inc()
}

// RecordCascade records the number of folders a trash/restore cascade touched.
func RecordCascade(operation string, folders int) {
	cascadeSize.WithLabelValues(operation).Observe(float64(folders))
}

// RecordBlobOperation records a blob store operation.
func RecordBlobOperation(backend, operation string, duration time.Duration, success bool) {
	blobOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	blobOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordAuthAttempt records a login attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordTaskRun records a background task run.
func RecordTaskRun(task string, success bool) {
	taskRunsTotal.WithLabelValues(task, statusLabel(success)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. Requests
// are labelled by chi route pattern, not raw path, to keep ids out of labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
