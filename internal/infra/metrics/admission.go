package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(admissionSlots, resultBatchSize) }

var admissionSlots = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "admission_slots",
		Help: "Admission controller slot accounting.",
	},
	[]string{"state"}, // 'capacity', 'available', 'in_use'
)

var resultBatchSize = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "worker_result_batch_size",
		Help:    "Number of pending worker results fetched per poll.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	},
)

func SetAdmissionSlots(capacity, available int64) {
	admissionSlots.WithLabelValues("capacity").Set(float64(capacity))
	admissionSlots.WithLabelValues("available").Set(float64(available))
	admissionSlots.WithLabelValues("in_use").Set(float64(capacity - available))
}

func ObserveResultBatch(n int) { resultBatchSize.Observe(float64(n)) }
