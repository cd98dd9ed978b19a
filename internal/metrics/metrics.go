// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "code"},
	)

	// SequenceLength is a histogram of token sequence lengths fed to the model
	SequenceLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intent_sequence_length_tokens",
			Help:    "Histogram of input token sequence lengths, boundary markers included.",
			Buckets: []float64{4, 8, 16, 32, 64, 128, 256, 512},
		},
	)

	// InferenceLatencySeconds is a histogram for model-only latency
	InferenceLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intent_inference_latency_seconds",
			Help:    "Histogram of model execution latency (seconds) excluding tokenization and decoding.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// PredictionsTotal counts decoded predictions by label
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_predictions_total",
			Help: "Number of classified inputs by predicted label.",
		},
		[]string{"label"},
	)

	// PipelineErrorsTotal counts aborted requests by the stage that failed
	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_pipeline_errors_total",
			Help: "Number of requests aborted, by pipeline stage.",
		},
		[]string{"stage"},
	)

	// CacheLookupsTotal counts result cache lookups by outcome
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_cache_lookups_total",
			Help: "Number of result cache lookups by outcome (hit, miss, error).",
		},
		[]string{"outcome"},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordSequenceLength records the token count of one request
func RecordSequenceLength(n int) {
	SequenceLength.Observe(float64(n))
}

// RecordInferenceLatency records the latency of an inference call
func RecordInferenceLatency(seconds float64) {
	InferenceLatencySeconds.Observe(seconds)
}

// RecordPrediction counts one prediction for label
func RecordPrediction(label string) {
	PredictionsTotal.WithLabelValues(label).Inc()
}

// RecordError counts one aborted request at stage
func RecordError(stage string) {
	PipelineErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordCacheLookup counts one cache lookup with outcome "hit", "miss" or "error"
func RecordCacheLookup(outcome string) {
	CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
