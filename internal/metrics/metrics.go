package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP traffic
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "writeups_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "writeups_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "route"})
)

// Uploads
var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "writeups_uploads_total",
		Help: "Upload attempts by result",
	}, []string{"result"})

	UploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "writeups_uploaded_bytes_total",
		Help: "Total bytes stored by successful uploads",
	})

	DeletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "writeups_deletions_total",
		Help: "Total number of deleted writeups",
	})

	OrphanedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "writeups_orphaned_files_total",
		Help: "Stored files that could not be cleaned up after a failed metadata write",
	})
)

// Auth
var (
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "writeups_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})
)
