package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	gradingRequestsTotal *prometheus.CounterVec
	gradingLatency       prometheus.Histogram
	refinementsTotal     *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.25, 1.0, 5.0, 15.0, 60.0},
		}, []string{"method", "route"})

		gradingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_grading_requests_total",
			Help: "Grading round-trips by outcome.",
		}, []string{"outcome"})

		gradingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grader_grading_latency_seconds",
			Help:    "End-to-end latency of grading model invocations.",
			Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
		})

		refinementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_refinement_requests_total",
			Help: "Instruction refinement round-trips by outcome.",
		}, []string{"outcome"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_upload_rejected_total",
			Help: "Uploaded pages rejected before grading.",
		}, []string{"reason"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, gradingRequestsTotal, gradingLatency, refinementsTotal, uploadRejectedTotal)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// GradingRequests exposes the grading outcome counter.
func GradingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRequestsTotal
}

// GradingLatency exposes the grading latency histogram.
func GradingLatency() prometheus.Histogram {
	RegisterMetrics()
	return gradingLatency
}

// RefinementRequests exposes the refinement outcome counter.
func RefinementRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return refinementsTotal
}

// UploadRejected exposes the rejected upload counter.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}
