package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(primaryPoolStats) }

var primaryPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "primary_db_pool_stats",
		Help: "Connection pool occupancy of the primary postgres store.",
	},
	[]string{"state"}, // 'total', 'idle', 'in_use'
)

// SetDBPoolStats publishes pgxpool occupancy. The sqlite fallback has no pool
// worth reporting.
func SetDBPoolStats(total, idle, inUse int32) {
	primaryPoolStats.WithLabelValues("total").Set(float64(total))
	primaryPoolStats.WithLabelValues("idle").Set(float64(idle))
	primaryPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}
