package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "invocation_duration_seconds",
		Help:      "Duration of model invocations",
	}, []string{"provider", "model", "shape"})

	invocationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "invocation_failures_total",
		Help:      "Number of failed model invocations",
	}, []string{"provider", "model", "shape"})
)

func shapeLabel(req InvokeRequest) string {
	if req.ResponseSchema != nil {
		return "json_schema"
	}
	return "text"
}
