package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(failoverState, failoverTransitionsTotal, outboxReplayedTotal) }

var failoverState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "storage_failover_state",
		Help: "Current storage routing state: 0=primary, 1=fallback, 2=recovering.",
	},
)

var failoverTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storage_failover_transitions_total",
		Help: "Storage state transitions, labeled by direction.",
	},
	[]string{"to"}, // 'primary', 'fallback', 'recovering'
)

var outboxReplayedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storage_outbox_replayed_total",
		Help: "Outbox events replayed to the recovered primary, labeled by result.",
	},
	[]string{"result"}, // 'applied', 'duplicate', 'error'
)

func SetFailoverState(s int) { failoverState.Set(float64(s)) }

func IncFailoverTransition(to string) {
	failoverTransitionsTotal.WithLabelValues(norm(to)).Inc()
}

func IncOutboxReplayed(result string) {
	outboxReplayedTotal.WithLabelValues(norm(result)).Inc()
}
