package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(callbackAttemptsTotal, callbackLatencyMs) }

var callbackAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "preview_callback_attempts_total",
		Help: "Outbound callback attempts, labeled by outcome.",
	},
	[]string{"outcome"}, // 'success', 'retry', 'failed'
)

var callbackLatencyMs = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "preview_callback_latency_ms",
		Help:    "Callback HTTP latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
	},
)

func IncCallbackAttempt(outcome string) {
	callbackAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveCallbackLatency(ms float64) {
	callbackLatencyMs.Observe(ms)
}
